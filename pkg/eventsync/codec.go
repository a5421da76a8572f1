package eventsync

import (
	"encoding/json"
	"fmt"

	"github.com/jaemin-s/eventsync/pkg/events"
	"github.com/jaemin-s/eventsync/pkg/querycache"
)

// Codec persists events cache values as their JSON wire form.
type Codec struct{}

var _ querycache.Codec = Codec{}

func (Codec) Encode(key querycache.QueryKey, data any) ([]byte, error) {
	switch data.(type) {
	case *events.Event, *events.EventList:
		return json.Marshal(data)
	default:
		return nil, fmt.Errorf("eventsync: cannot encode %T for %s", data, key.Display())
	}
}

func (Codec) Decode(key querycache.QueryKey, raw []byte) (any, error) {
	if len(key) == 0 || key[0] != events.Collection {
		return nil, fmt.Errorf("eventsync: %s is not an events key", key.Display())
	}
	if isListKey(key) {
		var list events.EventList
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode event list: %w", err)
		}
		return &list, nil
	}
	var event events.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &event, nil
}
