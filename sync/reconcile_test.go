package sync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testToday = "2024-05-01"

func newTestReconciler(t *testing.T) (ScoreReconciler, *RedisCursorStore) {
	t.Helper()
	store := newTestCursorStore(t)
	reconciler := ScoreReconciler{
		HubSpot: newTestHubSpot(),
		PostHog: PostHogClient{
			InstanceURL:  "https://posthog.test",
			APIToken:     "api-token",
			ProjectToken: "project-token",
		},
		Cursor: store,
		Today:  func() string { return testToday },
	}
	return reconciler, store
}

func registerContactsResponder(body string) {
	httpmock.RegisterResponder("GET", "https://hubspot.test/crm/v3/objects/contacts",
		httpmock.NewStringResponder(http.StatusOK, body))
}

func registerPersonLookupResponder(body string) {
	httpmock.RegisterResponder("GET", "https://posthog.test/api/person/",
		httpmock.NewStringResponder(http.StatusOK, body))
}

func TestRunTickDayGuard(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, store := newTestReconciler(t)
	require.NoError(t, store.CompleteDay(testToday, ctx))

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err)

	assert.Equal(t, ReconcileSummary{}, summary)
	assert.Equal(t, 0, httpmock.GetTotalCallCount(), "no list request once today is stamped complete")
}

func TestRunTickFullSync(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, store := newTestReconciler(t)

	registerContactsResponder(`{"results":[{"properties":{"email":"x@y.com","hubspotscore":"42"}}]}`)
	registerPersonLookupResponder(`{"results":[{"id":7,"properties":{"plan":"pro"}}]}`)

	var patched string
	httpmock.RegisterResponder("PATCH", "https://posthog.test/api/person/7/",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer api-token", req.Header.Get("Authorization"))
			assert.Equal(t, "project-token", req.URL.Query().Get("token"))
			body, _ := io.ReadAll(req.Body)
			patched = string(body)
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Errored)
	assert.True(t, summary.FullSyncCompleted)

	assert.Equal(t, int64(42), gjson.Get(patched, "properties.hubspot_score").Int())
	assert.Equal(t, "pro", gjson.Get(patched, "properties.plan").String())

	date, err := store.LastCompletedDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, testToday, date)

	token, err := store.NextPage(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRunTickPersistsNextPage(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, store := newTestReconciler(t)

	registerContactsResponder(`{
		"results":[{"properties":{"email":"x@y.com","hubspotscore":"1"}}],
		"paging":{"next":{"link":"https://hubspot.test/crm/v3/objects/contacts?after=abc"}}
	}`)
	registerPersonLookupResponder(`{"results":[]}`)

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err)

	assert.False(t, summary.FullSyncCompleted)

	token, err := store.NextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://hubspot.test/crm/v3/objects/contacts?after=abc&hapikey=test-key", token)

	date, err := store.LastCompletedDate(ctx)
	require.NoError(t, err)
	assert.Empty(t, date, "a partial sync leaves the completion date untouched")
}

func TestRunTickResumesFromStoredToken(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, store := newTestReconciler(t)

	// today already complete, but a stored token resumes regardless
	require.NoError(t, store.CompleteDay(testToday, ctx))
	require.NoError(t, store.Advance("https://hubspot.test/crm/v3/objects/contacts?after=abc&hapikey=test-key", ctx))

	httpmock.RegisterResponder("GET", "https://hubspot.test/crm/v3/objects/contacts",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "abc", req.URL.Query().Get("after"))
			return httpmock.NewStringResponse(http.StatusOK, `{"results":[]}`), nil
		})

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err)
	assert.True(t, summary.FullSyncCompleted)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestRunTickPatchesEveryMatchedPerson(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, _ := newTestReconciler(t)

	registerContactsResponder(`{"results":[{"properties":{"email":"x@y.com","hubspotscore":"42"}}]}`)
	registerPersonLookupResponder(`{"results":[
		{"id":7,"properties":{}},
		{"id":8,"properties":{}}
	]}`)
	httpmock.RegisterResponder("PATCH", "https://posthog.test/api/person/7/",
		httpmock.NewStringResponder(http.StatusOK, `{}`))
	httpmock.RegisterResponder("PATCH", "https://posthog.test/api/person/8/",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated, "a contact counts once however many persons share its email")

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["PATCH https://posthog.test/api/person/7/"])
	assert.Equal(t, 1, info["PATCH https://posthog.test/api/person/8/"])
}

func TestRunTickSkipsUnmatchedContacts(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, _ := newTestReconciler(t)

	registerContactsResponder(`{"results":[{"properties":{"email":"x@y.com","hubspotscore":"42"}}]}`)
	registerPersonLookupResponder(`{"results":[]}`)

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Errored)
}

func TestRunTickNonNumericScoreCountsErrored(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, _ := newTestReconciler(t)

	registerContactsResponder(`{"results":[{"properties":{"email":"x@y.com","hubspotscore":"notanumber"}}]}`)
	registerPersonLookupResponder(`{"results":[{"id":7,"properties":{}}]}`)

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Errored)
	assert.True(t, summary.FullSyncCompleted, "a bad record never aborts the batch")

	info := httpmock.GetCallCountInfo()
	assert.Zero(t, info["PATCH https://posthog.test/api/person/7/"])
}

func TestRunTickAbandonsTickOnTransportFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, store := newTestReconciler(t)

	httpmock.RegisterResponder("GET", "https://hubspot.test/crm/v3/objects/contacts",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err, "an unreachable contact list never crashes the tick")
	assert.Equal(t, ReconcileSummary{}, summary)

	token, err := store.NextPage(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	date, err := store.LastCompletedDate(ctx)
	require.NoError(t, err)
	assert.Empty(t, date, "an abandoned tick leaves the cursor untouched")
}

func TestRunTickIsolatesPerContactErrors(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, _ := newTestReconciler(t)

	registerContactsResponder(`{"results":[
		{"properties":{"email":"bad@y.com","hubspotscore":"1"}},
		{"properties":{"email":"good@y.com","hubspotscore":"2"}}
	]}`)
	httpmock.RegisterResponder("GET", "https://posthog.test/api/person/",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("email") == "bad@y.com" {
				return httpmock.NewStringResponse(http.StatusInternalServerError, `{"detail":"boom"}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"results":[{"id":9,"properties":{}}]}`), nil
		})
	httpmock.RegisterResponder("PATCH", "https://posthog.test/api/person/9/",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	summary, err := reconciler.RunTick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Errored)
	assert.True(t, summary.FullSyncCompleted)
}

func TestRunTickExistingScoreWins(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	reconciler, _ := newTestReconciler(t)

	registerContactsResponder(`{"results":[{"properties":{"email":"x@y.com","hubspotscore":"42"}}]}`)
	registerPersonLookupResponder(`{"results":[{"id":7,"properties":{"hubspot_score":99}}]}`)

	var patched string
	httpmock.RegisterResponder("PATCH", "https://posthog.test/api/person/7/",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			patched = string(body)
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	_, err := reconciler.RunTick(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(99), gjson.Get(patched, "properties.hubspot_score").Int(),
		"properties already present take precedence")
}
