// Package bus defines the status/event types passed between the
// Coordinator and a chat front-end adapter, decoupling the pipeline
// from any specific chat platform's wire format.
package bus

// InboundMessage is one user message handed to the Coordinator by a
// channel adapter.
type InboundMessage struct {
	Channel string
	UserID  string
	ChatID  string
	Content string
	Files   []string
}

// MediaAttachment is one artifact file delivered back to the user.
type MediaAttachment struct {
	Path        string
	ContentType string
	Caption     string
}

// OutboundMessage is one delivery the Coordinator sends back through a
// channel adapter: a status edit, a final result, or an error.
type OutboundMessage struct {
	ChatID  string
	Content string
	Media   []MediaAttachment
	// EditMessageID, if non-empty, means this is a hash-gated status
	// edit of a previous message rather than a new send.
	EditMessageID string
}

// Event is a status update the Coordinator publishes for a task — the
// chat front-end's poller consumes these to decide whether to edit its
// status message.
type Event struct {
	Name    string
	TaskID  string
	Payload interface{}
}

// EventHandler handles one broadcast Event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription so the
// Coordinator doesn't depend on a concrete transport.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}
