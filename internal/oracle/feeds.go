package oracle

import (
	"fmt"

	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// FeedSpec locates the aggregator for one pair.
type FeedSpec struct {
	Pair    model.Pair
	Address string
	Invert  bool
}

// BuildFeeds creates a ChainlinkFeed per spec. Specs without an address are
// skipped; their pair stays unavailable.
func BuildFeeds(caller ContractCaller, specs []FeedSpec) (map[model.Pair]Feed, error) {
	feeds := make(map[model.Pair]Feed, len(specs))
	for _, s := range specs {
		if s.Address == "" {
			continue
		}
		if !s.Pair.Valid() {
			return nil, fmt.Errorf("oracle: unsupported pair %q", s.Pair)
		}
		f, err := NewChainlinkFeed(caller, s.Address, s.Invert)
		if err != nil {
			return nil, fmt.Errorf("oracle: feed for %s: %w", s.Pair, err)
		}
		feeds[s.Pair] = f
	}
	return feeds, nil
}
