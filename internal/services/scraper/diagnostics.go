// -----------------------------------------------------------------------
// Zero-Match Diagnostics - hints for fixing a stale selector
// -----------------------------------------------------------------------

package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
)

// candidateSelectors are generic shapes job listings tend to take. When a
// configured selector stops matching, counting these tells an operator
// where the jobs moved to.
var candidateSelectors = []string{
	".job",
	".job-listing",
	".job-item",
	".posting",
	".position",
	".opening",
	".vacancy",
	"[class*='job']",
	"[class*='position']",
	"[class*='opening']",
	"[class*='career']",
	"li a[href]",
	"table tr",
	"article",
}

// reportZeroMatches emits the single structured warning raised when a
// configured selector finds nothing. It names the page title and every
// candidate selector that did match elements on the page.
func reportZeroMatches(logger arbor.ILogger, doc *goquery.Document, configured, pageURL string) {
	title := strings.TrimSpace(doc.Find("title").First().Text())

	var hits []string
	for _, sel := range candidateSelectors {
		if n := doc.Find(sel).Length(); n > 0 {
			hits = append(hits, fmt.Sprintf("%s (%d)", sel, n))
		}
	}

	logger.Warn().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionFetch).
		Str("url", pageURL).
		Str("selector", configured).
		Str("page_title", title).
		Str("matching_selectors", strings.Join(hits, ", ")).
		Msg("Job selector matched no elements")
}
