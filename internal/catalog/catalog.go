// Package catalog provides the product lookup collaborator and the
// aggregation engine that groups lookup results into category summaries.
package catalog

import (
	"context"
	"errors"

	"github.com/whizzbang/audience-builder/internal/domain"
)

// MaxResults bounds every lookup; the ranked query never returns more rows.
const MaxResults = 10

// SentinelNotInUse is the reserved category value excluded from aggregation
// and matching.
const SentinelNotInUse = "NOT IN USE"

// ErrNotFound indicates the query matched no usable product records.
var ErrNotFound = errors.New("catalog: product not found")

// Lookup defines the interface for the catalog record lookup collaborator.
type Lookup interface {
	// Query returns up to MaxResults records ranked exact > prefix >
	// substring, preserving insertion order within equal rank. It returns
	// ErrNotFound when nothing usable matches.
	Query(ctx context.Context, name string) ([]domain.ProductRecord, error)

	// Ping verifies the data source is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying data source.
	Close() error
}
