package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/extract"
	"reviewrag/internal/retrieval"
	"reviewrag/internal/vector"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) Upsert(ctx context.Context, docs []vector.Document) error {
	return m.Called(ctx, docs).Error(0)
}

func (m *MockStore) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	args := m.Called(ctx, embedding, topK, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Match), args.Error(1)
}

func (m *MockStore) GetAll(ctx context.Context) ([]vector.Metadata, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Metadata), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, filter vector.Filter) ([]vector.Record, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Record), args.Error(1)
}

func (m *MockStore) DeleteExcept(ctx context.Context, productID string, keep []string) error {
	return m.Called(ctx, productID, keep).Error(0)
}

func vecs(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out
}

func TestIndexProduct_EmptyProductWritesNothing(t *testing.T) {
	e, s := new(MockEmbedder), new(MockStore)
	svc := retrieval.NewService(e, s, nil)

	n, err := svc.IndexProduct(context.Background(), &extract.ScrapedProduct{ProductID: "1", Reviews: []string{}})
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	e.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
	s.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	s.AssertNotCalled(t, "DeleteExcept", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexProduct_DescriptionAndReviews(t *testing.T) {
	e, s := new(MockEmbedder), new(MockStore)
	svc := retrieval.NewService(e, s, nil)

	p := &extract.ScrapedProduct{
		ProductID:   "42",
		ProductName: "Kettle",
		Category:    "Kitchen",
		Description: "Steel kettle",
		Reviews:     []string{"Boils fast", "Loud whistle"},
	}

	e.On("EmbedBatch", mock.Anything, []string{"Product: Kettle\nSteel kettle", "Boils fast", "Loud whistle"}).
		Return(vecs(3), nil).Once()
	s.On("Upsert", mock.Anything, mock.MatchedBy(func(docs []vector.Document) bool {
		if len(docs) != 3 {
			return false
		}
		return docs[0].ID == "42_desc" && docs[0].Metadata.Type == vector.TypeDescription &&
			docs[1].ID == "42_review_0" && docs[1].Metadata.Type == vector.TypeReview &&
			docs[2].ID == "42_review_1" && docs[2].Metadata.Category == "Kitchen" &&
			len(docs[2].Embedding) == 2
	})).Return(nil).Once()
	s.On("DeleteExcept", mock.Anything, "42", []string{"42_desc", "42_review_0", "42_review_1"}).Return(nil).Once()

	n, err := svc.IndexProduct(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	e.AssertExpectations(t)
	s.AssertExpectations(t)
	s.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestIndexProduct_ReviewsOnly(t *testing.T) {
	e, s := new(MockEmbedder), new(MockStore)
	svc := retrieval.NewService(e, s, nil)

	e.On("EmbedBatch", mock.Anything, []string{"a", "b"}).Return(vecs(2), nil)
	s.On("Upsert", mock.Anything, mock.MatchedBy(func(docs []vector.Document) bool {
		return len(docs) == 2 && docs[0].ID == "p_review_0" && docs[1].ID == "p_review_1"
	})).Return(nil)
	s.On("DeleteExcept", mock.Anything, "p", []string{"p_review_0", "p_review_1"}).Return(nil)

	n, err := svc.IndexProduct(context.Background(), &extract.ScrapedProduct{ProductID: "p", Reviews: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIndexProduct_Errors(t *testing.T) {
	p := &extract.ScrapedProduct{ProductID: "p", Reviews: []string{"a"}}

	t.Run("Invalid Product", func(t *testing.T) {
		svc := retrieval.NewService(new(MockEmbedder), new(MockStore), nil)
		_, err := svc.IndexProduct(context.Background(), &extract.ScrapedProduct{})
		assert.ErrorIs(t, err, retrieval.ErrInvalidProduct)
		_, err = svc.IndexProduct(context.Background(), nil)
		assert.ErrorIs(t, err, retrieval.ErrInvalidProduct)
	})

	t.Run("Embedder Error", func(t *testing.T) {
		e, s := new(MockEmbedder), new(MockStore)
		e.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))
		_, err := retrieval.NewService(e, s, nil).IndexProduct(context.Background(), p)
		assert.Error(t, err)
		s.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("Vector Count Mismatch", func(t *testing.T) {
		e, s := new(MockEmbedder), new(MockStore)
		e.On("EmbedBatch", mock.Anything, mock.Anything).Return(vecs(2), nil)
		_, err := retrieval.NewService(e, s, nil).IndexProduct(context.Background(), p)
		assert.Error(t, err)
	})

	t.Run("Store Error Propagates Unmodified", func(t *testing.T) {
		e, s := new(MockEmbedder), new(MockStore)
		storeErr := errors.New("disk full")
		e.On("EmbedBatch", mock.Anything, mock.Anything).Return(vecs(1), nil)
		s.On("Upsert", mock.Anything, mock.Anything).Return(storeErr)
		_, err := retrieval.NewService(e, s, nil).IndexProduct(context.Background(), p)
		assert.Equal(t, storeErr, err)
		s.AssertNotCalled(t, "DeleteExcept", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIndexProduct_SerialisesSameProduct(t *testing.T) {
	e := new(MockEmbedder)
	s := &trackingStore{}
	svc := retrieval.NewService(e, s, nil)

	e.On("EmbedBatch", mock.Anything, mock.Anything).Return(vecs(1), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IndexProduct(context.Background(), &extract.ScrapedProduct{ProductID: "same", Reviews: []string{"r"}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.maxActive)
}

// trackingStore records how many Upsert..DeleteExcept sequences overlap.
type trackingStore struct {
	mu        sync.Mutex
	active    int
	maxActive int
}

func (t *trackingStore) Upsert(ctx context.Context, docs []vector.Document) error {
	t.mu.Lock()
	t.active++
	if t.active > t.maxActive {
		t.maxActive = t.active
	}
	t.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	return nil
}

func (t *trackingStore) DeleteExcept(ctx context.Context, productID string, keep []string) error {
	t.mu.Lock()
	t.active--
	t.mu.Unlock()
	return nil
}

func (t *trackingStore) Query(ctx context.Context, e []float32, k int, f vector.Filter) ([]vector.Match, error) {
	return nil, nil
}

func (t *trackingStore) GetAll(ctx context.Context) ([]vector.Metadata, error) { return nil, nil }

func (t *trackingStore) Get(ctx context.Context, f vector.Filter) ([]vector.Record, error) {
	return nil, nil
}

func TestRetrieveContext(t *testing.T) {
	tests := []struct {
		name    string
		topK    int
		setup   func(*MockEmbedder, *MockStore)
		want    []string
		wantErr bool
	}{
		{
			name: "Ranked And Scoped",
			topK: 2,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "noisy?").Return([]float32{0.1}, nil)
				s.On("Query", mock.Anything, []float32{0.1}, 2, vector.Filter{vector.KeyProductID: "42"}).
					Return([]vector.Match{
						{Record: vector.Record{Text: "Loud whistle", Metadata: vector.Metadata{ProductID: "42"}}, Distance: 0.1},
						{Record: vector.Record{Text: "foreign", Metadata: vector.Metadata{ProductID: "7"}}, Distance: 0.2},
						{Record: vector.Record{Text: "Boils fast", Metadata: vector.Metadata{ProductID: "42"}}, Distance: 0.3},
					}, nil)
			},
			want: []string{"Loud whistle", "Boils fast"},
		},
		{
			name: "No Documents",
			topK: 5,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "noisy?").Return([]float32{0.1}, nil)
				s.On("Query", mock.Anything, mock.Anything, 5, mock.Anything).Return([]vector.Match{}, nil)
			},
			want: []string{},
		},
		{
			name:  "Zero TopK",
			topK:  0,
			setup: func(e *MockEmbedder, s *MockStore) {},
			want:  []string{},
		},
		{
			name: "Embedder Error",
			topK: 3,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "noisy?").Return(nil, errors.New("down"))
			},
			wantErr: true,
		},
		{
			name: "Store Error",
			topK: 3,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "noisy?").Return([]float32{0.1}, nil)
				s.On("Query", mock.Anything, mock.Anything, 3, mock.Anything).Return(nil, errors.New("unavailable"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := new(MockEmbedder), new(MockStore)
			tt.setup(e, s)
			svc := retrieval.NewService(e, s, nil)

			got, err := svc.RetrieveContext(context.Background(), "42", "noisy?", tt.topK)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), max(tt.topK, 0))
		})
	}
}

func TestRetrieveContext_Logging(t *testing.T) {
	var buf bytes.Buffer
	e, s := new(MockEmbedder), new(MockStore)
	e.On("Embed", mock.Anything, "q").Return([]float32{1}, nil)
	s.On("Query", mock.Anything, mock.Anything, 5, mock.Anything).
		Return([]vector.Match{{Record: vector.Record{Text: "x", Metadata: vector.Metadata{ProductID: "42"}}}}, nil)

	svc := retrieval.NewService(e, s, retrieval.NewQueryLogger(&buf))
	_, err := svc.RetrieveContext(context.Background(), "42", "q", 5)
	require.NoError(t, err)

	var entry retrieval.QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "q", entry.Query)
	assert.Equal(t, "42", entry.ProductID)
	assert.Equal(t, 1, entry.NumResults)
}

func TestListProducts(t *testing.T) {
	e, s := new(MockEmbedder), new(MockStore)
	s.On("GetAll", mock.Anything).Return([]vector.Metadata{
		{ProductID: "2", ProductName: "Cup", Category: "Kitchen", Type: vector.TypeReview},
		{ProductID: "1", ProductName: "Mug", Type: vector.TypeDescription},
		{ProductID: "2", ProductName: "Cup renamed", Type: vector.TypeReview},
		{ProductID: "", ProductName: "orphan"},
	}, nil)

	got, err := retrieval.NewService(e, s, nil).ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []retrieval.ProductSummary{
		{ProductID: "2", ProductName: "Cup", Category: "Kitchen"},
		{ProductID: "1", ProductName: "Mug"},
	}, got)
}

func TestListProducts_Empty(t *testing.T) {
	e, s := new(MockEmbedder), new(MockStore)
	s.On("GetAll", mock.Anything).Return([]vector.Metadata{}, nil)

	got, err := retrieval.NewService(e, s, nil).ListProducts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCountReviews(t *testing.T) {
	e, s := new(MockEmbedder), new(MockStore)
	s.On("Get", mock.Anything, vector.Filter{vector.KeyProductID: "42", vector.KeyType: vector.TypeReview}).
		Return([]vector.Record{{ID: "42_review_0"}, {ID: "42_review_1"}}, nil)

	n, err := retrieval.NewService(e, s, nil).CountReviews(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBuildDocuments_Idempotent(t *testing.T) {
	p := &extract.ScrapedProduct{ProductID: "9", ProductName: "Lamp", Description: "Warm light", Reviews: []string{"bright"}}
	first := retrieval.BuildDocuments(p)
	second := retrieval.BuildDocuments(p)
	assert.Equal(t, first, second)
	assert.Equal(t, "Product: Lamp\nWarm light", first[0].Text)
}

func TestDescriptionFromText(t *testing.T) {
	p := &extract.ScrapedProduct{ProductID: "9", ProductName: "Lamp", Description: "Warm light\nDimmable"}
	doc := retrieval.BuildDocuments(p)[0]

	assert.Equal(t, "Warm light\nDimmable", retrieval.DescriptionFromText(doc.Metadata.ProductName, doc.Text))
	// Text without the header is returned as is.
	assert.Equal(t, "Warm light", retrieval.DescriptionFromText("Lamp", "Warm light"))
}

type countingStore struct {
	MockStore
	n int
}

func (c *countingStore) CountDocuments(ctx context.Context) (int, error) { return c.n, nil }

func TestCountDocuments(t *testing.T) {
	s := new(MockStore)
	s.On("GetAll", mock.Anything).Return([]vector.Metadata{{ProductID: "1"}, {ProductID: "1"}, {ProductID: "2"}}, nil)

	n, err := retrieval.NewService(new(MockEmbedder), s, nil).CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Stores that count natively skip the full scan.
	c := &countingStore{n: 42}
	n, err = retrieval.NewService(new(MockEmbedder), c, nil).CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	c.AssertNotCalled(t, "GetAll", mock.Anything)
}
