package sync

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// DefaultHubSpotEndpoint is the base URL for the HubSpot API.
	DefaultHubSpotEndpoint = "https://api.hubapi.com"
	// ContactsPageLimit caps one page of the contact list pull.
	ContactsPageLimit = "100"
	// ScoreProperty is the CRM lead-scoring field pulled back into analytics.
	ScoreProperty = "hubspotscore"
)

// existingIDPattern extracts the record id from a duplicate-conflict message.
var existingIDPattern = regexp.MustCompile(`Existing ID: (\d+)`)

// HubSpotClient performs contact operations against the HubSpot CRM API.
// Auth is a query-string API key on every request.
type HubSpotClient struct {
	APIKey    string
	Endpoint  string
	Transport http.RoundTripper
}

type contactRequest struct {
	Properties map[string]interface{} `json:"properties"`
}

// CrmContact is one CRM contact row read during reconciliation.
type CrmContact struct {
	Email string
	Score string
}

// ContactsPage is one page of the paginated contact list.
type ContactsPage struct {
	Contacts []CrmContact
	// NextPageURL is the pre-authenticated URL of the next page,
	// empty on the last page.
	NextPageURL string
}

func (h HubSpotClient) endpoint() string {
	if h.Endpoint != "" {
		return h.Endpoint
	}
	return DefaultHubSpotEndpoint
}

func (h HubSpotClient) apiBuilder() *requests.Builder {
	return requests.URL(h.endpoint()).Client(newHTTPClient(h.Transport))
}

// do executes a request capturing the status code and raw body regardless
// of status. Status inspection is left to the caller; only transport
// failures surface as errors.
func do(builder *requests.Builder, ctx context.Context) (int, string, error) {
	var status int
	var body string
	err := builder.
		AddValidator(nil).
		Handle(func(response *http.Response) error {
			status = response.StatusCode
			data, readErr := io.ReadAll(response.Body)
			if readErr != nil {
				return readErr
			}
			body = string(data)
			return nil
		}).
		Fetch(ctx)
	return status, body, err
}

// UpsertContact creates a CRM contact keyed by email. A duplicate conflict
// is recovered locally by parsing the existing record id out of the error
// message and converting the create into an update. Other error statuses
// are logged and final; only a transport failure is returned to the caller.
func (h HubSpotClient) UpsertContact(email string, properties map[string]interface{}, ctx context.Context) error {
	props := make(map[string]interface{}, len(properties)+1)
	props["email"] = email
	for k, v := range properties {
		props[k] = v
	}

	status, body, err := do(h.apiBuilder().
		Path("/crm/v3/objects/contacts").
		Param("hapikey", h.APIKey).
		BodyJSON(&contactRequest{Properties: props}), ctx)
	if err != nil {
		return err
	}
	if Successful(status) {
		return nil
	}
	if status == http.StatusConflict {
		id, found := parseExistingID(body)
		if !found {
			logrus.WithField("message", errorMessage(body)).Warn("contact conflict without a parsable existing id")
			return nil
		}
		h.updateContact(id, props, ctx)
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"status":  status,
		"message": errorMessage(body),
	}).Warn("contact create failed")
	return nil
}

// updateContact patches an existing contact with the same properties.
// Failures are logged, not escalated — this is a best-effort side channel.
func (h HubSpotClient) updateContact(id string, properties map[string]interface{}, ctx context.Context) {
	status, body, err := do(h.apiBuilder().
		Patch().
		Pathf("/crm/v3/objects/contacts/%s", id).
		Param("hapikey", h.APIKey).
		BodyJSON(&contactRequest{Properties: properties}), ctx)
	if err != nil {
		logrus.WithError(err).WithField("id", id).Warn("contact update failed")
		return
	}
	if !Successful(status) {
		logrus.WithFields(logrus.Fields{
			"id":      id,
			"status":  status,
			"message": errorMessage(body),
		}).Warn("contact update failed")
	}
}

// FetchContactsPage pulls one page of contacts with email and score
// properties. A stored page URL is used verbatim since it already encodes
// all query parameters; otherwise a fresh first-page request is built.
// Error statuses are logged and whatever partial result parsed is returned.
func (h HubSpotClient) FetchContactsPage(pageURL string, ctx context.Context) (ContactsPage, error) {
	var result ContactsPage

	var builder *requests.Builder
	if pageURL != "" {
		builder = requests.URL(pageURL).Client(newHTTPClient(h.Transport))
	} else {
		builder = h.apiBuilder().
			Path("/crm/v3/objects/contacts").
			Param("limit", ContactsPageLimit).
			Param("properties", "email", ScoreProperty).
			Param("hapikey", h.APIKey)
	}

	status, body, err := do(builder, ctx)
	if err != nil {
		return result, err
	}
	if !Successful(status) || gjson.Get(body, "status").String() == "error" {
		logrus.WithFields(logrus.Fields{
			"status":  status,
			"message": errorMessage(body),
		}).Warn("contact list failed")
	}

	for _, record := range gjson.Get(body, "results").Array() {
		result.Contacts = append(result.Contacts, CrmContact{
			Email: record.Get("properties.email").String(),
			Score: record.Get("properties." + ScoreProperty).String(),
		})
	}
	if next := gjson.Get(body, "paging.next.link").String(); next != "" {
		result.NextPageURL = appendAPIKey(next, h.APIKey)
	}
	return result, nil
}

// ProbeContacts issues a minimal one-record list request to validate
// connectivity and credentials.
func (h HubSpotClient) ProbeContacts(ctx context.Context) (int, string, error) {
	return do(h.apiBuilder().
		Path("/crm/v3/objects/contacts").
		Param("limit", "1").
		Param("properties", "email").
		Param("hapikey", h.APIKey), ctx)
}

func parseExistingID(body string) (string, bool) {
	match := existingIDPattern.FindStringSubmatch(errorMessage(body))
	if match == nil {
		return "", false
	}
	return match[1], true
}

// errorMessage pulls the message field out of an error body, falling back
// to the raw body for non-JSON responses.
func errorMessage(body string) string {
	if m := gjson.Get(body, "message"); m.Exists() {
		return m.String()
	}
	return body
}

// appendAPIKey re-appends query-string auth to a paging link, which the
// CRM returns without credentials.
func appendAPIKey(link string, key string) string {
	separator := "?"
	if strings.Contains(link, "?") {
		separator = "&"
	}
	return link + separator + "hapikey=" + url.QueryEscape(key)
}
