package realtime

import "github.com/jaemin-s/eventsync/pkg/events"

// Named realtime streams.
const (
	StreamEvents = events.Collection
)

// EventChanged publishes a change message on the events stream. It satisfies services.ChangeNotifier.
func (h *Hub) EventChanged(kind, id string) {
	h.BroadcastStream(StreamEvents, Message{
		Event: kind,
		Data:  ChangeData{ID: id},
	})
}

// ChangeData is the payload of an events stream message.
type ChangeData struct {
	ID string `json:"id"`
}
