package main

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
)

// DefaultKeyOffset selects path based key derivation. Any positive offset
// instead keeps the url suffix starting at that byte, which is how pages
// written by older deployments were keyed (they used 58). Changing either
// rule orphans previously stored pages.
const DefaultKeyOffset = 0

const (
	pageStart = "<!DOCTYPE html><html><body><table>"
	pageEnd   = "</table></body></html>"

	firstHeader = "first"
	lastHeader  = "last"
)

var errEmptyKey = errors.New("url yields an empty storage key")

// renders contact pages, holds no per message state so it is safe to reuse
type ArtifactBuilder struct {
	visibility Visibility
	keyOffset  int
}

func NewArtifactBuilder(visibility Visibility, keyOffset int) *ArtifactBuilder {
	if visibility == "" {
		visibility = VisibilityPublic
	}
	return &ArtifactBuilder{visibility: visibility, keyOffset: keyOffset}
}

func (b *ArtifactBuilder) Build(record ContactRecord) (Artifact, error) {
	key, err := KeyFromURL(record.URL, b.keyOffset)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Key:        key,
		Content:    renderContactPage(record),
		Visibility: b.visibility,
	}, nil
}

// KeyFromURL derives the storage key for a contact url.
//
// With offset <= 0 the key is the url path, as written and without its leading
// slash, so https://bucket.example.com/contacts/ada becomes contacts/ada. With a positive
// offset the key is rawURL[offset:].
func KeyFromURL(rawURL string, offset int) (string, error) {
	if offset > 0 {
		if len(rawURL) <= offset {
			return "", fmt.Errorf("url %q shorter than key offset %d: %w", rawURL, offset, errEmptyKey)
		}
		return rawURL[offset:], nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	// escaped so a%2Fb and a/b stay distinct keys
	key := strings.TrimPrefix(u.EscapedPath(), "/")
	if key == "" {
		return "", fmt.Errorf("url %q: %w", rawURL, errEmptyKey)
	}
	return key, nil
}

// one header cell and one detail cell per non-empty name, first before last
func renderContactPage(record ContactRecord) []byte {
	var header, detail bytes.Buffer

	header.WriteString("<tr>")
	detail.WriteString("<tr>")

	for _, col := range []struct{ name, value string }{
		{firstHeader, record.FirstName},
		{lastHeader, record.LastName},
	} {
		if col.value == "" {
			continue
		}
		header.WriteString("<th>" + col.name + "</th>")
		detail.WriteString("<td>" + html.EscapeString(col.value) + "</td>")
	}

	header.WriteString("</tr>")
	detail.WriteString("</tr>")

	var page bytes.Buffer
	page.Grow(len(pageStart) + header.Len() + detail.Len() + len(pageEnd))
	page.WriteString(pageStart)
	page.Write(header.Bytes())
	page.Write(detail.Bytes())
	page.WriteString(pageEnd)
	return page.Bytes()
}
