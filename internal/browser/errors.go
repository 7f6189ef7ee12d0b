package browser

import "fmt"

// PageLoadError reports a navigation that could not complete within the
// configured timeout.
type PageLoadError struct {
	URL string
	Err error
}

func (e *PageLoadError) Error() string {
	return fmt.Sprintf("page load failed for %s: %v", e.URL, e.Err)
}

func (e *PageLoadError) Unwrap() error { return e.Err }
