package sync

import (
	"context"
	"slices"

	"github.com/sirupsen/logrus"
)

// EventHandler turns qualifying inbound analytics events into CRM contact
// upserts. Events are filtered by name, then by the presence of a valid
// email, then by the ignored-domain list.
type EventHandler struct {
	Options SyncOptions
	HubSpot HubSpotClient
}

// HandleEvent processes one inbound event. Non-qualifying events are
// dropped silently; a dropped event is not an error.
func (h EventHandler) HandleEvent(event InboundEvent, ctx context.Context) error {
	if !slices.Contains(h.Options.TriggeringEvents, event.Name) {
		return nil
	}

	email, found := ExtractEmail(event)
	if !found {
		logrus.WithField("event", event.Name).Debug("event carries no valid email, skipped")
		return nil
	}
	if IsIgnoredDomain(email, h.Options.IgnoredDomains) {
		return nil
	}

	properties := MapProperties(MapPropertiesParams{
		Properties:     event.MergedProperties(),
		UserMappings:   h.Options.Mappings,
		SentAt:         event.SentAt,
		DefaultCountry: h.Options.DefaultCountry,
	})
	return h.HubSpot.UpsertContact(email, properties, ctx)
}
