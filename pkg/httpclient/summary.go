package httpclient

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxHTMLBodyBytes  = 1 << 20 // 1 MiB
	maxSummaryRunes   = 200
	htmlContentMarker = "html"
)

// htmlSummary extracts a short description from HTML error pages, such as the
// ones proxies and load balancers return in front of a JSON API.
func htmlSummary(headers http.Header, body []byte) string {
	if !strings.Contains(strings.ToLower(headers.Get("Content-Type")), htmlContentMarker) || len(body) == 0 {
		return ""
	}
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	summary := firstNonEmpty(
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
	)
	summary = strings.Join(strings.Fields(summary), " ")
	if r := []rune(summary); len(r) > maxSummaryRunes {
		summary = string(r[:maxSummaryRunes])
	}
	return summary
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
