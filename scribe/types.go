package scribe

// Status is the processing stage of one segment.
type Status string

const (
	StatusSplitting    Status = "SPLITTING"
	StatusTranscribing Status = "TRANSCRIBING"
	StatusCorrecting   Status = "CORRECTING"
	StatusFinished     Status = "FINISHED"
)

// ChunkState is the caller-visible progress of one segment.
type ChunkState struct {
	ID            int     `json:"id"`
	Status        Status  `json:"status"`
	Transcription *string `json:"transcription,omitempty"`
	Correction    *string `json:"correction,omitempty"`
}

func (c ChunkState) clone() ChunkState {
	out := c
	if c.Transcription != nil {
		t := *c.Transcription
		out.Transcription = &t
	}
	if c.Correction != nil {
		t := *c.Correction
		out.Correction = &t
	}
	return out
}

// EventType names the events a request emits.
type EventType string

const (
	EventProcessStarted  EventType = "process-started"
	EventProcessing      EventType = "processing"
	EventProcessFinished EventType = "process-finished"
)

// Event is one outbound notification for a processing request.
type Event struct {
	Type      EventType
	RequestID string

	// Chunks is a full snapshot, set on processing events
	Chunks []ChunkState

	// Message and Error are set on process-finished
	Message string
	Error   string
}

// Publisher receives the events of a request. Publish may be called from
// several goroutines.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) {
	f(e)
}
