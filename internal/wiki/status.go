package wiki

// Stage identifies a coarse lifecycle phase of a sync pass. The exact
// message text is informational only; consumers rely on stage occurrence
// and ordering (progress stages precede the terminal ready/error stage).
type Stage string

const (
	StageSyncing    Stage = "syncing"
	StageExtracting Stage = "extracting"
	StageStoring    Stage = "storing"
	StageIndexing   Stage = "indexing"
	StageReady      Stage = "ready"
	StageError      Stage = "error"
)

// StatusEvent is one coarse progress signal for the UI layer to render.
type StatusEvent struct {
	Stage   Stage
	Message string
}

// StatusReporter decouples the sync pipeline from whoever renders progress:
// events flow through a bounded one-way channel and emission never blocks
// the pipeline. When no consumer keeps up, progress signals are dropped
// rather than stalling a sync pass; terminal ready/error events evict the
// oldest buffered signal instead, so they always land.
type StatusReporter struct {
	events chan StatusEvent
}

// NewStatusReporter creates a reporter with the given channel capacity.
func NewStatusReporter(buffer int) *StatusReporter {
	if buffer <= 0 {
		buffer = 16
	}
	return &StatusReporter{
		events: make(chan StatusEvent, buffer),
	}
}

// Emit publishes an event without blocking.
func (r *StatusReporter) Emit(stage Stage, message string) {
	if r == nil {
		return
	}
	event := StatusEvent{Stage: stage, Message: message}
	select {
	case r.events <- event:
		return
	default:
	}

	if stage != StageReady && stage != StageError {
		// Consumer is behind; dropping a coarse progress signal is harmless.
		return
	}

	// Terminal events are contractual: make room by discarding the oldest
	// buffered signal until the send succeeds.
	for {
		select {
		case r.events <- event:
			return
		case <-r.events:
		}
	}
}

// Events returns the receive side of the event stream.
func (r *StatusReporter) Events() <-chan StatusEvent {
	return r.events
}
