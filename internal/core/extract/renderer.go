package extract

import (
	"context"
	"fmt"
	"strings"
)

// Rendered is the raw document behind a URL.
type Rendered struct {
	URL    string
	Title  string
	HTML   string
	Status int
}

type Renderer interface {
	Render(ctx context.Context, url string) (*Rendered, error)
}

// IsChallenge reports whether a response looks like a bot-protection
// interstitial rather than the requested page.
func IsChallenge(r *Rendered) bool {
	if r == nil || (r.Status != 403 && r.Status != 503) {
		return false
	}
	for _, marker := range []string{"Just a moment", "Checking your browser", "Attention Required"} {
		if strings.Contains(r.Title, marker) {
			return true
		}
	}
	if strings.Contains(r.HTML, "Cloudflare") && strings.Contains(r.HTML, "Ray ID") {
		return true
	}
	return false
}

// HTTPStatusError is returned when a page responds with a non-2xx status.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("page %s responded with HTTP %d", e.URL, e.Status)
}
