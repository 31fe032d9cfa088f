package sync

import (
	"sort"
	"time"
)

// InboundEvent is a single analytics event delivered by the event pipeline.
// It is read-only to this package.
type InboundEvent struct {
	Name            string                 `json:"event"`
	DistinctID      string                 `json:"distinct_id"`
	SetProperties   map[string]interface{} `json:"$set"`
	EventProperties map[string]interface{} `json:"properties"`
	SentAt          time.Time              `json:"sent_at"`
}

// MergedProperties flattens the event's person-level and event-level
// properties into a single map. Event-level properties win on key collision.
func (e InboundEvent) MergedProperties() map[string]interface{} {
	result := make(map[string]interface{}, len(e.SetProperties)+len(e.EventProperties))
	for k, v := range e.SetProperties {
		result[k] = v
	}
	for k, v := range e.EventProperties {
		result[k] = v
	}
	return result
}

// sortedPropertyKeys returns the keys of a property map in sorted order,
// so mapping output does not depend on map iteration order.
func sortedPropertyKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
