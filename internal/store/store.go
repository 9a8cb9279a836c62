// Package store persists opportunities and source logs. Callers depend on the
// Store interface; PostgresStore backs production and MemoryStore backs tests
// and dry runs.
package store

import (
	"context"
	"errors"

	"pace/ingest-service/internal/model"
)

// ErrNotFound is returned when no opportunity matches a lookup.
var ErrNotFound = errors.New("opportunity not found")

// Store is the document store the pipeline writes to.
type Store interface {
	// FindByApplyLink returns the record whose stored canonical apply link
	// equals link, or ErrNotFound.
	FindByApplyLink(ctx context.Context, link string) (*model.Opportunity, error)
	// ListRecent returns up to limit records, most recently fetched first.
	ListRecent(ctx context.Context, limit int) ([]model.Opportunity, error)
	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Opportunity, error)
	// Upsert creates opp under opp.ID or merges its fields into the existing
	// document. Fields not present in the write are left untouched.
	Upsert(ctx context.Context, opp model.Opportunity) error
	// AppendSourceLog records one raw fetch.
	AppendSourceLog(ctx context.Context, l model.SourceLog) error
}
