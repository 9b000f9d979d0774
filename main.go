// The main package for the chromecrawl executable.
package main

import (
	"github.com/openclaw/chromecrawl/cmd"
)

func main() {
	cmd.Execute()
}
