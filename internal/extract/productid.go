package extract

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var productIDPattern = regexp.MustCompile(`-p-(\d+)`)

const maxFallbackIDLen = 20

// ProductID derives a stable identifier from a product URL. It prefers the
// numeric "-p-<digits>" segment, then the last all-digit dash-separated
// token, then the first characters of the last path segment. It never
// returns an empty string.
func ProductID(rawURL string) string {
	if m := productIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}

	parts := strings.Split(strings.TrimRight(rawURL, "/"), "-")
	for i := len(parts) - 1; i >= 0; i-- {
		if isDigits(parts[i]) {
			return parts[i]
		}
	}

	segments := strings.Split(strings.TrimRight(rawURL, "/"), "/")
	if last := truncate(segments[len(segments)-1], maxFallbackIDLen); last != "" {
		return last
	}

	return truncate(uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String(), maxFallbackIDLen)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ReviewsURL maps a product URL to its reviews page.
func ReviewsURL(productURL string) string {
	u := productURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	if strings.HasSuffix(u, "/yorumlar") {
		return u
	}
	return u + "/yorumlar"
}
