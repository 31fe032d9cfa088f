package sync

import (
	"strings"
	"time"

	"github.com/biter777/countries"
	"github.com/iancoleman/strcase"
	"github.com/ttacon/libphonenumber"
)

// builtinPropertyTable maps snake-cased source keys to CRM contact
// properties. Source keys are folded through strcase.ToSnake before
// lookup, so any casing that folds to a listed key matches (Company,
// companyName, FIRSTNAME), not only the literal spellings below.
var builtinPropertyTable = map[string]string{
	"company_name":    "company",
	"company":         "company",
	"last_name":       "lastname",
	"lastname":        "lastname",
	"first_name":      "firstname",
	"firstname":       "firstname",
	"phone_number":    "phone",
	"phone":           "phone",
	"website":         "website",
	"domain":          "website",
	"company_website": "website",
}

// MappingPair is one user-configured sourceField:targetField mapping.
type MappingPair struct {
	Source string
	Target string
}

// ParseMappingPairs parses a comma-separated list of src:dst pairs.
// Entries without a colon are skipped.
func ParseMappingPairs(config string) []MappingPair {
	var result []MappingPair
	for _, entry := range strings.Split(config, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		src, dst, found := strings.Cut(entry, ":")
		if !found || src == "" || dst == "" {
			continue
		}
		result = append(result, MappingPair{Source: src, Target: dst})
	}
	return result
}

// MapPropertiesParams contains parameters for MapProperties.
type MapPropertiesParams struct {
	Properties     map[string]interface{}
	UserMappings   []MappingPair
	SentAt         time.Time
	DefaultCountry string
}

// MapProperties translates merged event properties into CRM contact
// properties. The built-in table is applied first, then user mappings in
// configuration order, so user mappings may overwrite a built-in result.
// Source keys are visited in sorted order to keep the output deterministic.
func MapProperties(params MapPropertiesParams) map[string]interface{} {
	result := make(map[string]interface{})

	for _, key := range sortedPropertyKeys(params.Properties) {
		if target, exists := builtinPropertyTable[strcase.ToSnake(key)]; exists {
			result[target] = params.Properties[key]
		}
	}

	for _, pair := range params.UserMappings {
		if pair.Source == "sent_at" || pair.Source == "created_at" {
			result[pair.Target] = midnightMillis(params.SentAt)
			continue
		}
		if value, exists := params.Properties[pair.Source]; exists {
			result[pair.Target] = value
		}
	}

	if params.DefaultCountry != "" {
		if raw, ok := result["phone"].(string); ok && raw != "" {
			result["phone"] = normalizePhone(raw, params.DefaultCountry)
		}
	}

	return result
}

// midnightMillis truncates a timestamp to UTC midnight of its calendar day,
// as a millisecond epoch value.
func midnightMillis(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
}

// normalizePhone formats a phone number as E.164 using the configured
// default country to resolve the dialing region. The raw value is kept
// when the number cannot be parsed.
func normalizePhone(raw string, country string) string {
	c := countries.ByName(country) // matches on Alpha-2 / Alpha-3 / Name
	if c == countries.Unknown {
		return raw
	}
	number, err := libphonenumber.Parse(raw, c.Alpha2())
	if err != nil {
		return raw
	}
	return libphonenumber.Format(number, libphonenumber.E164)
}
