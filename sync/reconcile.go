package sync

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ReconcileSummary reports the outcome of one reconciliation tick.
type ReconcileSummary struct {
	Updated int
	Skipped int
	Errored int
	// FullSyncCompleted is true when no next page remained and the day
	// was stamped complete.
	FullSyncCompleted bool
}

// ScoreReconciler drives one page of CRM contacts per tick through
// lookup-by-email and person-record patch in the analytics system.
// Contacts are processed one at a time in page order; per-contact errors
// are isolated so one bad record never aborts the batch.
type ScoreReconciler struct {
	HubSpot HubSpotClient
	PostHog PostHogClient
	Cursor  CursorStore

	// Today overrides the current-date lookup in tests. Nil means UTC now.
	Today func() string
}

func (r ScoreReconciler) today() string {
	if r.Today != nil {
		return r.Today()
	}
	return TodayUTC()
}

// RunTick executes one scheduled reconciliation tick. A stored next-page
// token resumes a partial sync; with no token and today already stamped
// complete, no list request is issued. Transport failures are logged and
// end the tick without advancing the cursor; only cursor-store failures
// are returned.
func (r ScoreReconciler) RunTick(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary

	token, err := r.Cursor.NextPage(ctx)
	if err != nil {
		return summary, err
	}
	if token == "" {
		completed, err := r.Cursor.LastCompletedDate(ctx)
		if err != nil {
			return summary, err
		}
		if completed == r.today() {
			return summary, nil // already synced today
		}
	}

	page, err := r.HubSpot.FetchContactsPage(token, ctx)
	if err != nil {
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			logrus.WithError(err).Warn("contact list unreachable, tick abandoned")
			return summary, nil
		}
		return summary, err
	}

	for _, contact := range page.Contacts {
		matched, err := r.reconcileContact(contact, ctx)
		switch {
		case err != nil:
			summary.Errored++
			logrus.WithError(err).WithField("email", contact.Email).Warn("contact reconciliation failed")
		case matched:
			summary.Updated++
		default:
			summary.Skipped++
		}
	}

	if page.NextPageURL != "" {
		if err := r.Cursor.Advance(page.NextPageURL, ctx); err != nil {
			return summary, err
		}
	} else {
		if err := r.Cursor.CompleteDay(r.today(), ctx); err != nil {
			return summary, err
		}
		summary.FullSyncCompleted = true
	}

	message := "contact batch completed"
	if summary.FullSyncCompleted {
		message = "full contact sync completed"
	}
	logrus.WithFields(logrus.Fields{
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"errored": summary.Errored,
	}).Info(message)

	return summary, nil
}

// reconcileContact patches every analytics person matching the contact's
// email. It reports whether at least one person matched; multiple matches
// are all patched but count once.
func (r ScoreReconciler) reconcileContact(contact CrmContact, ctx context.Context) (bool, error) {
	if contact.Email == "" {
		return false, nil
	}

	persons, err := r.PostHog.FindPersonsByEmail(contact.Email, ctx)
	if err != nil {
		return false, err
	}
	if len(persons) == 0 {
		return false, nil
	}

	score, err := strconv.Atoi(contact.Score)
	if err != nil {
		return false, &ScoreParseError{Email: contact.Email, Raw: contact.Score}
	}

	for _, person := range persons {
		if err := r.PostHog.UpdatePersonScore(person, score, ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ScoreParseError reports a CRM score that is not a base-10 integer.
// The contact is counted as errored and no patch is issued for it.
type ScoreParseError struct {
	Email string
	Raw   string
}

func (e *ScoreParseError) Error() string {
	return "non-numeric score " + strconv.Quote(e.Raw) + " for " + e.Email
}
