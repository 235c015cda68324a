package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeContact(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		expectErr error
		expected  ContactRecord
	}{
		{
			name: "full contact",
			body: `{"first":"Ada","last":"Lovelace","url":"https://bucket.example.com/contacts/ada"}`,
			expected: ContactRecord{
				URL:       "https://bucket.example.com/contacts/ada",
				FirstName: "Ada",
				LastName:  "Lovelace",
			},
		},
		{
			name:     "names are optional",
			body:     `{"url":"https://bucket.example.com/contacts/anon"}`,
			expected: ContactRecord{URL: "https://bucket.example.com/contacts/anon"},
		},
		{
			name:     "unknown fields are ignored",
			body:     `{"url":"https://bucket.example.com/contacts/x","phone":"555"}`,
			expected: ContactRecord{URL: "https://bucket.example.com/contacts/x"},
		},
		{
			name:     "keys match case sensitively",
			body:     `{"url":"https://bucket.example.com/contacts/ada","First":"Ada","last":"Lovelace"}`,
			expected: ContactRecord{URL: "https://bucket.example.com/contacts/ada", LastName: "Lovelace"},
		},
		{
			name:     "null names are absent",
			body:     `{"url":"https://bucket.example.com/contacts/ada","first":null}`,
			expected: ContactRecord{URL: "https://bucket.example.com/contacts/ada"},
		},
		{
			name:      "upper case url is not the url",
			body:      `{"URL":"https://bucket.example.com/contacts/ada","first":"Ada"}`,
			expectErr: ErrMissingField,
		},
		{
			name:      "name of the wrong type",
			body:      `{"url":"https://bucket.example.com/contacts/ada","last":7}`,
			expectErr: ErrMalformed,
		},
		{
			name:      "missing url",
			body:      `{"first":"Bob"}`,
			expectErr: ErrMissingField,
		},
		{
			name:      "empty url",
			body:      `{"first":"Bob","url":""}`,
			expectErr: ErrMissingField,
		},
		{
			name:      "blank url",
			body:      `{"url":"   "}`,
			expectErr: ErrMissingField,
		},
		{
			name:      "null body",
			body:      `null`,
			expectErr: ErrMissingField,
		},
		{
			name:      "invalid json",
			body:      `{invalid json}`,
			expectErr: ErrMalformed,
		},
		{
			name:      "empty body",
			body:      ``,
			expectErr: ErrMalformed,
		},
		{
			name:      "array body",
			body:      `[{"url":"https://bucket.example.com/contacts/ada"}]`,
			expectErr: ErrMalformed,
		},
		{
			name:      "url of the wrong type",
			body:      `{"url":42}`,
			expectErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := DecodeContact(tt.body)

			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)

				var de *DecodeError
				assert.ErrorAs(t, err, &de)
				assert.Equal(t, StageDecode, stageOf(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, record)
		})
	}
}

func TestDecodeErrorMessages(t *testing.T) {
	_, err := DecodeContact(`{"first":"Bob"}`)
	assert.EqualError(t, err, "missing required field: url")

	_, err = DecodeContact(`{`)
	assert.ErrorContains(t, err, "malformed message body")
}
