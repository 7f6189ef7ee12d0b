package scrape_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reviewrag/features/scrape"
	"reviewrag/internal/browser"
)

func TestHandler_Scrape(t *testing.T) {
	ex := new(MockExtractor)
	idx := new(MockIndexer)
	h := scrape.NewHandler(scrape.NewService(ex, idx, nil, nil, allowed))

	p := kettle()
	ex.On("Scrape", mock.Anything, productURL).Return(p, nil)
	idx.On("IndexProduct", mock.Anything, p).Return(3, nil)

	body := `{"url":"` + productURL + `"}`
	w := httptest.NewRecorder()
	h.Scrape(w, httptest.NewRequest("POST", "/scrape", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data scrape.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "725", resp.Data.ProductID)
	assert.Equal(t, 3, resp.Data.Documents)
	assert.Equal(t, "3 documents stored.", resp.Data.Message)
}

func TestHandler_Scrape_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		setup  func(ex *MockExtractor)
		status int
		code   string
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing url", `{}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"foreign host", `{"url":"https://example.com/p-1"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{
			name: "page load failure",
			body: `{"url":"` + productURL + `"}`,
			setup: func(ex *MockExtractor) {
				ex.On("Scrape", mock.Anything, productURL).
					Return(nil, &browser.PageLoadError{URL: productURL, Err: context.DeadlineExceeded})
			},
			status: http.StatusBadGateway,
			code:   "PAGE_LOAD_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := new(MockExtractor)
			if tt.setup != nil {
				tt.setup(ex)
			}
			h := scrape.NewHandler(scrape.NewService(ex, new(MockIndexer), nil, nil, allowed))

			w := httptest.NewRecorder()
			h.Scrape(w, httptest.NewRequest("POST", "/scrape", strings.NewReader(tt.body)))

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestHandler_Scrape_Async(t *testing.T) {
	pub := new(MockPublisher)
	h := scrape.NewHandler(scrape.NewService(nil, nil, nil, pub, allowed))
	pub.On("Publish", "scrape.task", mock.Anything).Return(nil)

	w := httptest.NewRecorder()
	body := `{"url":"` + productURL + `"}`
	h.Scrape(w, httptest.NewRequest("POST", "/scrape?async=true", strings.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)
	pub.AssertExpectations(t)
}

func TestHandler_Scrape_AsyncWithoutQueue(t *testing.T) {
	h := scrape.NewHandler(scrape.NewService(nil, nil, nil, nil, allowed))

	w := httptest.NewRecorder()
	body := `{"url":"` + productURL + `"}`
	h.Scrape(w, httptest.NewRequest("POST", "/scrape?async=true", strings.NewReader(body)))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
