package sync

import (
	"bytes"
	"encoding/csv"
	"sort"
)

// MappingDocRow is a single row in the property mapping documentation.
type MappingDocRow struct {
	SourceField string // analytics property name (e.g. "companyName")
	TargetField string // CRM contact property (e.g. "company")
	IsBuiltin   bool   // whether this row comes from the built-in table
	Notes       string
}

// MappingDocumentation describes the effective property mapping for a
// configuration, for operators reviewing what will sync.
type MappingDocumentation struct {
	Rows []MappingDocRow
}

// GenerateMappingDocumentation builds documentation from the built-in
// table and the configured additional mappings, sorted for deterministic
// output: built-in rows first, then custom rows in configuration order.
func GenerateMappingDocumentation(options SyncOptions) MappingDocumentation {
	doc := MappingDocumentation{Rows: []MappingDocRow{}}

	sources := make([]string, 0, len(builtinPropertyTable))
	for source := range builtinPropertyTable {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		notes := ""
		if source == "phone" || source == "phone_number" {
			if options.DefaultCountry != "" {
				notes = "Normalised to E.164"
			}
		}
		doc.Rows = append(doc.Rows, MappingDocRow{
			SourceField: source,
			TargetField: builtinPropertyTable[source],
			IsBuiltin:   true,
			Notes:       notes,
		})
	}

	for _, pair := range options.Mappings {
		notes := ""
		if pair.Source == "sent_at" || pair.Source == "created_at" {
			notes = "Event timestamp truncated to UTC midnight (epoch millis)"
		}
		doc.Rows = append(doc.Rows, MappingDocRow{
			SourceField: pair.Source,
			TargetField: pair.Target,
			Notes:       notes,
		})
	}

	return doc
}

// FormatCSV formats the mapping documentation as CSV.
func (d MappingDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Source Field", "CRM Field", "Built-in", "Notes"}); err != nil {
		return "", err
	}
	for _, row := range d.Rows {
		builtinMark := ""
		if row.IsBuiltin {
			builtinMark = "yes"
		}
		if err := writer.Write([]string{row.SourceField, row.TargetField, builtinMark, row.Notes}); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
