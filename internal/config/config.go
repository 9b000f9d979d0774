// Package config loads the application's configuration through Viper from a
// config file, CHROMECRAWL_* environment variables, and CLI flags bound by
// the command layer.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config captures every knob that influences a crawl session. All values
// originate from Viper so they can be set via file, env, or flags.
type Config struct {
	// Endpoint is the full debugger HTTP endpoint. When empty it is derived
	// from Port by the command layer.
	Endpoint      string
	Port          string
	OutputDir     string
	PreferredTabs []string

	DelayMin time.Duration
	DelayMax time.Duration
	Limit    int

	SkipImages bool
	Force      bool

	FetchCeiling    time.Duration
	LoadTimeout     time.Duration
	SettleDelay     time.Duration
	MinContentBytes int

	CooldownEvery int
	CooldownFor   time.Duration
	BlockCooldown time.Duration

	BlockMarkers   []string
	BlockSelectors []string

	MetricsAddr string
	LogFile     string
	Verbose     bool
}

// SetDefaults registers every configuration default on v.
func SetDefaults(v *viper.Viper) {
	// No default: the output directory anchors the manifest and must be
	// chosen deliberately.
	v.SetDefault("crawl.output_dir", "")
	v.SetDefault("crawl.endpoint", "")
	v.SetDefault("crawl.port", "")
	v.SetDefault("crawl.preferred_tabs", []string{})
	v.SetDefault("crawl.delay_min", "2s")
	v.SetDefault("crawl.delay_max", "5s")
	v.SetDefault("crawl.limit", 0)
	v.SetDefault("crawl.skip_images", false)
	v.SetDefault("crawl.force", false)
	v.SetDefault("crawl.fetch_ceiling", "45s")
	v.SetDefault("crawl.load_timeout", "30s")
	v.SetDefault("crawl.settle_delay", "1500ms")
	v.SetDefault("crawl.min_content_bytes", 1000)
	v.SetDefault("crawl.cooldown_every", 200)
	v.SetDefault("crawl.cooldown_for", "20s")
	v.SetDefault("crawl.block_cooldown", "60s")
	v.SetDefault("antiblock.markers", []string{})
	v.SetDefault("antiblock.selectors", []string{})
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.verbose", false)
}

// Init wires defaults, environment variables, and the optional config file
// into v. A missing config file is not an error; an unparsable one is.
func Init(v *viper.Viper, cfgFile string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	SetDefaults(v)

	v.SetEnvPrefix("CHROMECRAWL") // e.g. CHROMECRAWL_CRAWL_PORT=9333
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("chromecrawl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.chromecrawl")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			logger.Debug("no config file found; using defaults and environment")
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	logger.Info("using config file", zap.String("path", v.ConfigFileUsed()))
	return nil
}

// Load constructs a Config by reading from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Endpoint:        strings.TrimRight(v.GetString("crawl.endpoint"), "/"),
		Port:            v.GetString("crawl.port"),
		OutputDir:       v.GetString("crawl.output_dir"),
		PreferredTabs:   cleanList(v.GetStringSlice("crawl.preferred_tabs")),
		DelayMin:        v.GetDuration("crawl.delay_min"),
		DelayMax:        v.GetDuration("crawl.delay_max"),
		Limit:           v.GetInt("crawl.limit"),
		SkipImages:      v.GetBool("crawl.skip_images"),
		Force:           v.GetBool("crawl.force"),
		FetchCeiling:    v.GetDuration("crawl.fetch_ceiling"),
		LoadTimeout:     v.GetDuration("crawl.load_timeout"),
		SettleDelay:     v.GetDuration("crawl.settle_delay"),
		MinContentBytes: v.GetInt("crawl.min_content_bytes"),
		CooldownEvery:   v.GetInt("crawl.cooldown_every"),
		CooldownFor:     v.GetDuration("crawl.cooldown_for"),
		BlockCooldown:   v.GetDuration("crawl.block_cooldown"),
		BlockMarkers:    cleanList(v.GetStringSlice("antiblock.markers")),
		BlockSelectors:  cleanList(v.GetStringSlice("antiblock.selectors")),
		MetricsAddr:     v.GetString("metrics.addr"),
		LogFile:         v.GetString("log.file"),
		Verbose:         v.GetBool("log.verbose"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("crawl.output_dir must be set")
	}
	if c.DelayMin <= 0 {
		return fmt.Errorf("crawl.delay_min must be > 0")
	}
	if c.DelayMax < c.DelayMin {
		return fmt.Errorf("crawl.delay_max must be >= crawl.delay_min")
	}
	if c.Limit < 0 {
		return fmt.Errorf("crawl.limit must be >= 0")
	}
	if c.FetchCeiling <= 0 {
		return fmt.Errorf("crawl.fetch_ceiling must be > 0")
	}
	if c.LoadTimeout <= 0 {
		return fmt.Errorf("crawl.load_timeout must be > 0")
	}
	if c.FetchCeiling <= c.LoadTimeout {
		return fmt.Errorf("crawl.fetch_ceiling must exceed crawl.load_timeout")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("crawl.settle_delay must be >= 0")
	}
	if c.MinContentBytes < 0 {
		return fmt.Errorf("crawl.min_content_bytes must be >= 0")
	}
	if c.CooldownEvery <= 0 {
		return fmt.Errorf("crawl.cooldown_every must be > 0")
	}
	if c.CooldownFor <= 0 {
		return fmt.Errorf("crawl.cooldown_for must be > 0")
	}
	if c.BlockCooldown <= 0 {
		return fmt.Errorf("crawl.block_cooldown must be > 0")
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
