package rfq

import (
	"sort"

	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// Rank returns quotes ordered by ascending premium. Equal premiums keep
// arrival order. The input slice is not modified.
func Rank(quotes []model.Quote) []model.Quote {
	out := make([]model.Quote, len(quotes))
	copy(out, quotes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Premium.LessThan(out[j].Premium)
	})
	return out
}
