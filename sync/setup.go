package sync

import (
	"context"
	"fmt"
)

// VerifySetup probes CRM connectivity with a minimal one-record list
// request and fails activation on anything but success, guarding against
// proceeding with invalid credentials. On a successful probe all persisted
// cursor state is cleared so a (re)activation starts fresh.
func VerifySetup(hubspot HubSpotClient, cursor CursorStore, ctx context.Context) error {
	status, body, err := hubspot.ProbeContacts(ctx)
	if err != nil {
		return fmt.Errorf("unable to reach the CRM: %w", err)
	}
	if !Successful(status) {
		return fmt.Errorf("CRM credential check failed: %w", &StatusError{StatusCode: status, Message: errorMessage(body)})
	}
	if err := cursor.Reset(ctx); err != nil {
		return fmt.Errorf("failed to clear cursor state: %w", err)
	}
	return nil
}
