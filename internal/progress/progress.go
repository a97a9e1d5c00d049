// Package progress carries incremental status events out of long-running
// operations. Reporting is cosmetic: dropping events never affects the
// operation's correctness.
package progress

// Event is one progress update from a bulk operation.
type Event struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// Sink receives progress events. Implementations must not block the
// producing operation for long.
type Sink interface {
	Publish(ev Event)
}

// Func adapts a plain function into a Sink.
type Func func(ev Event)

func (f Func) Publish(ev Event) { f(ev) }

// Channel is a Sink backed by a buffered channel, suitable for streaming
// updates across goroutines. Events are dropped when the consumer lags.
type Channel struct {
	C chan Event
}

func NewChannel(buffer int) *Channel {
	return &Channel{C: make(chan Event, buffer)}
}

func (c *Channel) Publish(ev Event) {
	select {
	case c.C <- ev:
	default:
	}
}

// Close releases the channel once the producer is done.
func (c *Channel) Close() { close(c.C) }

// Publish sends an event to sink if it is non-nil.
func Publish(sink Sink, stage, message string, current, total int) {
	if sink == nil {
		return
	}
	sink.Publish(Event{Stage: stage, Message: message, Current: current, Total: total})
}
