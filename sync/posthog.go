package sync

import (
	"context"
	"errors"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// AnalyticsScoreProperty is the person property the CRM score lands in.
const AnalyticsScoreProperty = "hubspot_score"

// PostHogClient reads and patches person records in the analytics system.
// Requests carry bearer-token auth plus the project token as a query param.
type PostHogClient struct {
	InstanceURL  string
	APIToken     string
	ProjectToken string
	Transport    http.RoundTripper
}

// Person is one analytics person record matched during reconciliation.
// Properties holds the record's stored properties as a raw JSON object.
type Person struct {
	ID         string
	Properties string
}

// Configured reports whether score sync is enabled. All three settings are
// required as a group.
func (p PostHogClient) Configured() bool {
	return p.InstanceURL != "" && p.APIToken != "" && p.ProjectToken != ""
}

func (p PostHogClient) apiBuilder() *requests.Builder {
	return requests.
		URL(p.InstanceURL).
		Client(newHTTPClient(p.Transport)).
		Bearer(p.APIToken).
		Param("token", p.ProjectToken)
}

// FindPersonsByEmail looks up person records matching an email address.
// Records without an id are dropped as malformed.
func (p PostHogClient) FindPersonsByEmail(email string, ctx context.Context) ([]Person, error) {
	status, body, err := do(p.apiBuilder().
		Path("/api/person/").
		Param("email", email), ctx)
	if err != nil {
		return nil, err
	}
	if !Successful(status) {
		return nil, &StatusError{StatusCode: status, Message: errorMessage(body)}
	}
	if !gjson.Valid(body) {
		return nil, errors.New("invalid person lookup response")
	}

	var persons []Person
	for _, record := range gjson.Get(body, "results").Array() {
		id := record.Get("id").String()
		if id == "" {
			continue
		}
		properties := "{}"
		if props := record.Get("properties"); props.IsObject() {
			properties = props.Raw
		}
		persons = append(persons, Person{ID: id, Properties: properties})
	}
	return persons, nil
}

// UpdatePersonScore patches a person record with the parsed CRM score.
// Properties already stored on the record take precedence, so an existing
// score value is left alone and only an absent one is inserted.
func (p PostHogClient) UpdatePersonScore(person Person, score int, ctx context.Context) error {
	properties := person.Properties
	if !gjson.Get(properties, AnalyticsScoreProperty).Exists() {
		var err error
		properties, err = sjson.Set(properties, AnalyticsScoreProperty, score)
		if err != nil {
			return err
		}
	}
	payload, err := sjson.SetRaw(`{}`, "properties", properties)
	if err != nil {
		return err
	}

	status, body, err := do(p.apiBuilder().
		Patch().
		Pathf("/api/person/%s/", person.ID).
		BodyBytes([]byte(payload)).
		ContentType("application/json"), ctx)
	if err != nil {
		return err
	}
	if !Successful(status) {
		return &StatusError{StatusCode: status, Message: errorMessage(body)}
	}
	return nil
}
