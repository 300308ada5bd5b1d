package scribe

// progress owns the canonical ChunkState collection of one request. Pipelines
// send replacement states for their own slot; a single goroutine applies
// them in arrival order and publishes a full copy after each one, so no
// snapshot ever mixes old and new slot values.
type progress struct {
	requestID string
	states    []ChunkState
	updates   chan ChunkState
	done      chan struct{}
	publisher Publisher
}

func newProgress(requestID string, n int, publisher Publisher) *progress {
	states := make([]ChunkState, n)
	for i := range states {
		states[i] = ChunkState{ID: i, Status: StatusSplitting}
	}
	p := &progress{
		requestID: requestID,
		states:    states,
		updates:   make(chan ChunkState),
		done:      make(chan struct{}),
		publisher: publisher,
	}
	go p.run()
	return p
}

func (p *progress) run() {
	defer close(p.done)
	for state := range p.updates {
		p.states[state.ID] = state
		p.publisher.Publish(Event{
			Type:      EventProcessing,
			RequestID: p.requestID,
			Chunks:    p.snapshot(),
		})
	}
}

func (p *progress) snapshot() []ChunkState {
	out := make([]ChunkState, len(p.states))
	for i, s := range p.states {
		out[i] = s.clone()
	}
	return out
}

// set hands a copy of state for slot state.ID to the aggregator. It returns
// once the copy has been accepted; must not be called after close.
func (p *progress) set(state ChunkState) {
	p.updates <- state.clone()
}

// close stops accepting updates and waits for every accepted update to be
// published. It returns the final collection.
func (p *progress) close() []ChunkState {
	close(p.updates)
	<-p.done
	return p.snapshot()
}
