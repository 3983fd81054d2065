package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/invoice-item-converter/internal/cache"
	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

var testRecords = []models.OutputRecord{
	{VendorName: "Acme", ProductCode: "AB-1", Description: "Widget", Quantity: 2, UnitPrice: 10, LineSubtotal: 20},
	{VendorName: "Acme", ProductCode: "AB-2", Description: "Gadget", Quantity: 1, UnitPrice: 5, LineSubtotal: 5},
}

// fakeChat serves chat completions, answering with content or, when status
// is set, with an API error.
func fakeChat(t *testing.T, calls *int32, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"message": "boom", "type": "server_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdvisor(srv *httptest.Server, c *cache.Cache[Summary]) *Advisor {
	return New(Config{
		BaseURL:    srv.URL + "/v1",
		APIKey:     "test-key",
		Model:      "test-model",
		MaxRetries: 2,
		Timeout:    5 * time.Second,
	}, c)
}

func TestSummarize(t *testing.T) {
	var calls int32
	srv := fakeChat(t, &calls, 0, "```json\n{\"summary\": \"Two items.\", \"warnings\": [\"AB-2 is cheap\"]}\n```")

	a := newTestAdvisor(srv, nil)
	s, err := a.Summarize(context.Background(), testRecords)
	require.NoError(t, err)

	assert.Equal(t, "Two items.", s.Text)
	assert.Equal(t, []string{"AB-2 is cheap"}, s.Warnings)
	assert.Equal(t, "test-model", s.Model)
	assert.False(t, s.Cached)
	assert.EqualValues(t, 1, calls)
}

func TestSummarizeUsesCache(t *testing.T) {
	var calls int32
	srv := fakeChat(t, &calls, 0, `{"summary": "Fine."}`)

	a := newTestAdvisor(srv, cache.New[Summary](time.Hour))
	_, err := a.Summarize(context.Background(), testRecords)
	require.NoError(t, err)

	s, err := a.Summarize(context.Background(), testRecords)
	require.NoError(t, err)
	assert.True(t, s.Cached)
	assert.EqualValues(t, 1, calls)

	// A different total is a different question.
	changed := append([]models.OutputRecord{}, testRecords...)
	changed[1].LineSubtotal = 6
	_, err = a.Summarize(context.Background(), changed)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}

func TestSummarizeMalformed(t *testing.T) {
	var calls int32
	srv := fakeChat(t, &calls, 0, "Everything looks fine to me!")

	a := newTestAdvisor(srv, nil)
	_, err := a.Summarize(context.Background(), testRecords)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.EqualValues(t, 2, calls)
}

func TestSummarizeServerError(t *testing.T) {
	var calls int32
	srv := fakeChat(t, &calls, http.StatusInternalServerError, "")

	a := newTestAdvisor(srv, nil)
	_, err := a.Summarize(context.Background(), testRecords)
	assert.ErrorIs(t, err, ErrAdvisorUnavailable)
	assert.EqualValues(t, 2, calls)
}

func TestSummarizeClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := fakeChat(t, &calls, http.StatusUnauthorized, "")

	a := newTestAdvisor(srv, nil)
	_, err := a.Summarize(context.Background(), testRecords)
	assert.ErrorIs(t, err, ErrAdvisorUnavailable)
	assert.EqualValues(t, 1, calls)
}

func TestSample(t *testing.T) {
	items := Sample(testRecords, 1)
	require.Len(t, items, 1)
	assert.Equal(t, SampleItem{ProductCode: "AB-1", Description: "Widget", Quantity: 2, UnitPrice: 10, Subtotal: 20}, items[0])

	assert.Len(t, Sample(testRecords, 0), 2)
	assert.Len(t, Sample(testRecords, 10), 2)
	assert.Empty(t, Sample(nil, 5))

	data, err := json.Marshal(items[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"product_code":"AB-1","description":"Widget","quantity":2,"unit_price":10,"subtotal":20}`, string(data))
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"summary": "ok"}`, "ok", false},
		{"json fence", "```json\n{\"summary\": \"ok\"}\n```", "ok", false},
		{"bare fence", "```\n{\"summary\": \"ok\"}\n```", "ok", false},
		{"text around fence", "Here you go:\n```json\n{\"summary\": \"ok\"}\n```\nThanks", "ok", false},
		{"unclosed fence", "```json\n{\"summary\": \"ok\"}", "ok", false},
		{"prose", "Looks good.", "", true},
		{"empty summary", `{"summary": ""}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseReply(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Text)
		})
	}
}
