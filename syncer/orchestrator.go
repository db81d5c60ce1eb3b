package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/market"
	"github.com/oscarprdev/nft-market-sync/metadata"
)

// ListingsQueryKey is the query cache key for the merged listings snapshot.
// The service caches one snapshot of the whole marketplace under this key.
const ListingsQueryKey = "listings"

// MetadataResolver resolves token metadata documents.
type MetadataResolver interface {
	ResolveBatch(ctx context.Context, uris []string) []metadata.Result
}

// ListingItem is one marketplace listing merged with its metadata.
// When metadata resolution failed, Metadata is nil and MetadataError names
// the failure class; the listing itself is still served.
type ListingItem struct {
	market.Listing
	PriceDisplay  string             `json:"priceDisplay"`
	Metadata      *metadata.Document `json:"metadata,omitempty"`
	MetadataError string             `json:"metadataError,omitempty"`
}

// Orchestrator assembles the listings snapshot: it fetches the on-chain
// listing set, resolves each listing's metadata document, and merges the
// two into ListingItems. It is the load function behind the query cache.
type Orchestrator struct {
	logger   logging.Logger
	source   market.ListingSource
	resolver MetadataResolver
}

// NewOrchestrator creates an Orchestrator over the given listing source
// and metadata resolver.
func NewOrchestrator(logger logging.Logger, source market.ListingSource, resolver MetadataResolver) *Orchestrator {
	return &Orchestrator{
		logger:   logging.ForComponent(logger, logging.ComponentSyncOrchestrator),
		source:   source,
		resolver: resolver,
	}
}

// LoadListings builds a fresh snapshot. Contract failures fail the whole
// load; metadata failures degrade only the affected items.
func (o *Orchestrator) LoadListings(ctx context.Context) ([]ListingItem, error) {
	start := time.Now()

	listings, skipped, err := o.source.FetchListings(ctx)
	if err != nil {
		return nil, err
	}

	uris := make([]string, len(listings))
	for i, l := range listings {
		uris[i] = l.URI
	}
	results := o.resolver.ResolveBatch(ctx, uris)

	items := make([]ListingItem, len(listings))
	for i, l := range listings {
		item := ListingItem{
			Listing:      l,
			PriceDisplay: l.PriceDisplay(),
		}
		if res := results[i]; res.Err != nil {
			item.MetadataError = classifyMetadataError(res.Err)
		} else {
			doc := res.Document
			item.Metadata = &doc
		}
		items[i] = item
	}

	o.logger.Debug().
		Int(logging.FieldCount, len(items)).
		Int(logging.FieldSkipped, skipped).
		Dur(logging.FieldDuration, time.Since(start)).
		Msg("assembled listings snapshot")

	return items, nil
}

func classifyMetadataError(err error) string {
	switch {
	case errors.Is(err, metadata.ErrMalformed):
		return "malformed"
	case errors.Is(err, metadata.ErrUnreachable):
		return "unreachable"
	default:
		return "unreachable"
	}
}
