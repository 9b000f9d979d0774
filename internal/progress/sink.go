package progress

import "context"

// Sink consumes progress events. Implementations must honor ctx deadlines
// passed to Close and tolerate repeated Close calls.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// orchestrator stays agnostic about buffering and fan-out.
type Emitter interface {
	Emit(evt Event)
}
