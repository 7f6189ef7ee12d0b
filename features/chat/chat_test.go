package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reviewrag/features/chat"
	"reviewrag/internal/adapter/gemini"
	"reviewrag/internal/retrieval"
)

type MockRetriever struct{ mock.Mock }

func (m *MockRetriever) ListProducts(ctx context.Context) ([]retrieval.ProductSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.ProductSummary), args.Error(1)
}

func (m *MockRetriever) RetrieveContext(ctx context.Context, productID, query string, topK int) ([]string, error) {
	args := m.Called(ctx, productID, query, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockGenerator struct{ mock.Mock }

func (m *MockGenerator) Reply(ctx context.Context, req gemini.ReplyRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

var catalog = []retrieval.ProductSummary{{ProductID: "725", ProductName: "Acme Kettle", Category: "Kitchen"}}

func TestService_Reply(t *testing.T) {
	r := new(MockRetriever)
	g := new(MockGenerator)
	svc := chat.NewService(r, g, 3)

	r.On("ListProducts", mock.Anything).Return(catalog, nil)
	r.On("RetrieveContext", mock.Anything, "725", "Too loud", 3).Return([]string{"Loud whistle"}, nil)
	g.On("Reply", mock.Anything, gemini.ReplyRequest{
		ProductName: "Acme Kettle",
		Category:    "Kitchen",
		ReviewText:  "Too loud",
		Context:     []string{"Loud whistle"},
	}).Return("Thanks for the feedback!", nil)

	resp, err := svc.Reply(context.Background(), "725", "Too loud")
	require.NoError(t, err)
	assert.Equal(t, "Thanks for the feedback!", resp.GeneratedReply)
	assert.Equal(t, 1, resp.ContextUsed)
	assert.Equal(t, "725", resp.ProductID)
}

func TestService_Reply_EmptyReview(t *testing.T) {
	r := new(MockRetriever)
	svc := chat.NewService(r, new(MockGenerator), 0)

	_, err := svc.Reply(context.Background(), "725", "  \n")
	assert.ErrorIs(t, err, chat.ErrEmptyReview)
	r.AssertNotCalled(t, "ListProducts", mock.Anything)
}

func TestService_Reply_UnknownProduct(t *testing.T) {
	r := new(MockRetriever)
	svc := chat.NewService(r, new(MockGenerator), 0)
	r.On("ListProducts", mock.Anything).Return(catalog, nil)

	_, err := svc.Reply(context.Background(), "999", "Nice")
	assert.ErrorIs(t, err, chat.ErrProductNotFound)
}

func TestService_Reply_NoContextStillGenerates(t *testing.T) {
	r := new(MockRetriever)
	g := new(MockGenerator)
	svc := chat.NewService(r, g, 0)

	r.On("ListProducts", mock.Anything).Return(catalog, nil)
	r.On("RetrieveContext", mock.Anything, "725", "Nice", 5).Return([]string{}, nil)
	g.On("Reply", mock.Anything, mock.Anything).Return("Thank you!", nil)

	resp, err := svc.Reply(context.Background(), "725", "Nice")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ContextUsed)
}

func TestHandler_Reply_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		genErr error
		status int
		code   string
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing product", `{"review_text":"hi"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty review", `{"product_id":"725","review_text":" "}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown product", `{"product_id":"1","review_text":"hi"}`, nil, http.StatusNotFound, "NOT_FOUND"},
		{"missing key", `{"product_id":"725","review_text":"hi"}`, gemini.ErrMissingAPIKey, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"upstream", `{"product_id":"725","review_text":"hi"}`, errors.New("quota"), http.StatusBadGateway, "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := new(MockRetriever)
			g := new(MockGenerator)
			r.On("ListProducts", mock.Anything).Return(catalog, nil)
			r.On("RetrieveContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]string{}, nil)
			g.On("Reply", mock.Anything, mock.Anything).Return("", tt.genErr)

			h := chat.NewHandler(chat.NewService(r, g, 0))
			w := httptest.NewRecorder()
			h.Reply(w, httptest.NewRequest("POST", "/chat", strings.NewReader(tt.body)))

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestHandler_Reply_OK(t *testing.T) {
	r := new(MockRetriever)
	g := new(MockGenerator)
	r.On("ListProducts", mock.Anything).Return(catalog, nil)
	r.On("RetrieveContext", mock.Anything, "725", "hi", 5).Return([]string{"a", "b"}, nil)
	g.On("Reply", mock.Anything, mock.Anything).Return("Hello!", nil)

	h := chat.NewHandler(chat.NewService(r, g, 0))
	w := httptest.NewRecorder()
	h.Reply(w, httptest.NewRequest("POST", "/chat", strings.NewReader(`{"product_id":"725","review_text":"hi"}`)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data chat.Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hello!", resp.Data.GeneratedReply)
	assert.Equal(t, 2, resp.Data.ContextUsed)
}
