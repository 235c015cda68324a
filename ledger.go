package main

import (
	"context"
	"time"
)

// LedgerEntry remembers which page a message produced once its store and
// notification both succeeded.
type LedgerEntry struct {
	MessageID   string
	ArtifactKey string
	RecordedAt  time.Time
}

// PageLedger is consulted when a message comes back after its delete failed.
// A hit whose key still matches the key the body derives today means the page
// is already stored and announced, so the message only needs acknowledging.
// A hit with a different key (the key rule changed between runs) is treated
// as a miss and the message is processed again.
type PageLedger interface {
	Lookup(ctx context.Context, messageID string) (LedgerEntry, bool, error)

	// overwrites any earlier entry for the same message
	Record(ctx context.Context, entry LedgerEntry) error

	// drops entries recorded before now-olderThan, returning how many went
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
