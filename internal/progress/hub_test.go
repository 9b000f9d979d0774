package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records every event it consumes.
type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func validEvent(stage Stage, seq int) Event {
	return Event{
		Session: uuid.New(),
		TS:      time.Now().UTC(),
		Stage:   stage,
		Seq:     seq,
		URL:     "https://example.com",
	}
}

func TestHubDeliversToAllSinks(t *testing.T) {
	t.Parallel()

	first := &captureSink{}
	second := &captureSink{}
	hub := NewHub(Config{}, first, second)

	hub.Emit(validEvent(StageJobStart, 1))
	hub.Emit(validEvent(StageJobDone, 1))
	require.NoError(t, hub.Close(context.Background()))

	assert.Len(t, first.snapshot(), 2)
	assert.Len(t, second.snapshot(), 2)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageJobStart}) // no session, no ts, no seq
	require.NoError(t, hub.Close(context.Background()))

	assert.Empty(t, sink.snapshot())
}

func TestHubCloseDrainsBuffer(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{BufferSize: 64}, sink)
	for i := 1; i <= 10; i++ {
		hub.Emit(validEvent(StageJobDone, i))
	}
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, sink.snapshot(), 10)
}

func TestHubEmitAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))
	hub.Emit(validEvent(StageJobStart, 1))
	assert.Empty(t, sink.snapshot())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	session := uuid.New()
	now := time.Now()

	tests := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"valid job event", Event{Session: session, TS: now, Stage: StageJobDone, Seq: 3}, false},
		{"valid session event", Event{Session: session, TS: now, Stage: StageSessionDone}, false},
		{"missing session", Event{TS: now, Stage: StageJobDone, Seq: 1}, true},
		{"missing timestamp", Event{Session: session, Stage: StageJobDone, Seq: 1}, true},
		{"job event without seq", Event{Session: session, TS: now, Stage: StageJobStart}, true},
		{"unknown stage", Event{Session: session, TS: now, Stage: "BOGUS"}, true},
		{"negative duration", Event{Session: session, TS: now, Stage: StageCooldown, Dur: -time.Second}, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
