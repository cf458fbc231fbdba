// Package diff plans an incremental crawl from the stored URL set and the
// freshly discovered sitemap entries.
package diff

import (
	"sort"

	"github.com/dropradar/catalog-crawler/internal/catalog"
)

// Plan partitions a run's work. ToScrape holds live entries not yet
// stored, Keep the URLs present on both sides, Retire the stored URLs the
// site no longer lists. All three are sorted by URL.
type Plan struct {
	ToScrape []catalog.SitemapEntry
	Keep     []string
	Retire   []string
}

// Compute builds the plan for one run. Duplicate live entries collapse to
// the first occurrence.
func Compute(stored []string, live []catalog.SitemapEntry) Plan {
	liveSet := make(map[string]catalog.SitemapEntry, len(live))
	for _, e := range live {
		if _, seen := liveSet[e.URL]; !seen {
			liveSet[e.URL] = e
		}
	}
	storedSet := make(map[string]struct{}, len(stored))
	for _, url := range stored {
		storedSet[url] = struct{}{}
	}

	var plan Plan
	for url, e := range liveSet {
		if _, ok := storedSet[url]; ok {
			plan.Keep = append(plan.Keep, url)
		} else {
			plan.ToScrape = append(plan.ToScrape, e)
		}
	}
	for url := range storedSet {
		if _, ok := liveSet[url]; !ok {
			plan.Retire = append(plan.Retire, url)
		}
	}

	sort.Slice(plan.ToScrape, func(i, j int) bool { return plan.ToScrape[i].URL < plan.ToScrape[j].URL })
	sort.Strings(plan.Keep)
	sort.Strings(plan.Retire)
	return plan
}
