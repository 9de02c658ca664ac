// Package crawlers registers every site crawler under its stable name.
package crawlers

import (
	"context"
	"sort"

	"github.com/antzucaro/matchr"

	"readtx/lib/crawler"
	"readtx/lib/crawlers/amazonvisa"
	"readtx/lib/crawlers/amex"
	"readtx/lib/crawlers/ariva"
	"readtx/lib/crawlers/paypal"
	"readtx/lib/crawlers/traderepublic"
)

// Factory builds a ready-to-run crawler from its configuration.
type Factory func(ctx context.Context, cfg crawler.Config, newSession crawler.SessionFactory) (crawler.Site, error)

var registry = map[string]Factory{
	amazonvisa.Name:    amazonvisa.New,
	amex.Name:          amex.New,
	ariva.Name:         ariva.New,
	paypal.Name:        paypal.New,
	traderepublic.Name: traderepublic.New,
}

// Names lists the registered crawler names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Lookup(name string) (Factory, bool) {
	factory, ok := registry[name]
	return factory, ok
}

// Suggest returns the registered name closest to the given one, for
// "did you mean" messages on typos. Empty when nothing comes close.
func Suggest(name string) string {
	best, bestScore := "", 0.0
	for _, candidate := range Names() {
		score := matchr.JaroWinkler(name, candidate, true)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < 0.75 {
		return ""
	}
	return best
}
