package browser

import "time"

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultLanguage  = "tr-TR,tr;q=0.9"
	defaultPlatform  = "Win32"
)

// stateScript reads the client application state as a JSON string so key
// order survives the trip out of the page.
const stateScript = `() => {
	try {
		const s = window.__INITIAL_STATE__;
		return s === undefined || s === null ? "" : JSON.stringify(s);
	} catch (e) {
		return "";
	}
}`

const scrollScript = `(f) => window.scrollTo(0, document.body.scrollHeight * f)`

type Options struct {
	Headless bool
	// Timeout bounds the initial navigation and every element wait.
	Timeout time.Duration
	// Bin is an optional path to a Chromium binary. Empty means rod downloads
	// or discovers one.
	Bin       string
	UserAgent string
	Language  string
	// RatePerMinute throttles navigations across all pages of a Renderer.
	// Zero or negative disables throttling.
	RatePerMinute float64
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.Language == "" {
		o.Language = defaultLanguage
	}
	return o
}
