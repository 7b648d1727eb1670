// Package answer orchestrates one question end to end: admission, scope
// resolution, retrieval, context assembly, and streamed generation.
package answer

// EventType discriminates the events emitted while answering.
type EventType int

const (
	// EventResponse carries one sentence of the streamed answer.
	EventResponse EventType = iota

	// EventSources carries the provenance list, sent after the answer.
	EventSources

	// EventWarning carries a non-fatal notice, e.g. an admission delay.
	EventWarning

	// EventError is terminal: nothing follows it, not even Done.
	EventError

	// EventDone marks a successful completion.
	EventDone
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventResponse:
		return "response"
	case EventSources:
		return "sources"
	case EventWarning:
		return "warning"
	case EventError:
		return "error"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Source identifies one document the answer drew on.
type Source struct {
	Filename   string `json:"filename"`
	DocumentID int64  `json:"document_id"`
}

// Event is one item of the answer stream. Provider is set on Response
// events so transports can tell clients which backend produced the text.
type Event struct {
	Type     EventType
	Content  string
	Sources  []Source
	Provider string
}
