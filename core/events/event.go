package events

// Event is a structured record of a state transition. Implementations carry
// their own payloads; consumers dispatch on EventType.
type Event interface {
	EventType() string
}

// Emitter receives events as they are applied. The node installs one on the
// escrow engine; tests install capture emitters.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards everything. It stands in wherever an emitter is
// optional.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}
