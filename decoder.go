package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parses a raw queue body into a ContactRecord. url is required, first and
// last are optional and come back empty when absent. Keys match exactly, so
// "URL" or "First" count as absent.
func DecodeContact(body string) (ContactRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return ContactRecord{}, &DecodeError{Kind: ErrMalformed, Err: err}
	}

	var record ContactRecord
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"url", &record.URL},
		{"first", &record.FirstName},
		{"last", &record.LastName},
	} {
		if err := stringField(fields, f.name, f.dst); err != nil {
			return ContactRecord{}, &DecodeError{Kind: ErrMalformed, Err: err}
		}
	}

	if strings.TrimSpace(record.URL) == "" {
		return ContactRecord{}, &DecodeError{Kind: ErrMissingField, Field: "url"}
	}

	return record, nil
}

// absent and null both leave dst empty
func stringField(fields map[string]json.RawMessage, name string, dst *string) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	return nil
}
