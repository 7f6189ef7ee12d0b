package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	TypeDescription = "description"
	TypeReview      = "review"
)

// Metadata filter keys.
const (
	KeyProductID   = "product_id"
	KeyType        = "type"
	KeyProductName = "product_name"
	KeyCategory    = "category"
)

var ErrUnknownFilterKey = errors.New("unknown metadata filter key")

type Metadata struct {
	ProductID   string `json:"product_id"`
	Type        string `json:"type"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
}

func (m Metadata) value(key string) (string, bool) {
	switch key {
	case KeyProductID:
		return m.ProductID, true
	case KeyType:
		return m.Type, true
	case KeyProductName:
		return m.ProductName, true
	case KeyCategory:
		return m.Category, true
	}
	return "", false
}

// Document is one indexed unit of text with its embedding.
type Document struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  Metadata
}

type Record struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

type Match struct {
	Record
	Distance float64 `json:"distance"`
}

// Filter is an exact-match conjunction over metadata keys.
type Filter map[string]string

func (f Filter) Validate() error {
	for k := range f {
		if _, ok := (Metadata{}).value(k); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFilterKey, k)
		}
	}
	return nil
}

// Matches reports whether m satisfies every predicate. Unknown keys never
// match.
func (f Filter) Matches(m Metadata) bool {
	for k, want := range f {
		got, ok := m.value(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Keys returns the filter keys in a stable order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CosineDistance returns 1 - cos(a, b). Mismatched lengths and zero vectors
// are treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// SortMatches orders by ascending distance, ties broken by id.
func SortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Distance != ms[j].Distance {
			return ms[i].Distance < ms[j].Distance
		}
		return ms[i].ID < ms[j].ID
	})
}
