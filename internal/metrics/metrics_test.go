package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveConversion(t *testing.T) {
	m := New()
	doc := &models.Document{
		Structure:  models.StructureSignature{HasTaggedAmount: true},
		Candidates: make([]models.CandidateLine, 3),
		Records:    make([]models.OutputRecord, 2),
	}
	m.ObserveConversion("pdf", doc, 20*time.Millisecond)
	m.ObserveConversion("text", &models.Document{}, time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, `invoice_converter_documents_total{format="tagged-amount",source="pdf"} 1`)
	assert.Contains(t, out, `invoice_converter_documents_total{format="generic",source="text"} 1`)
	assert.Contains(t, out, "invoice_converter_candidate_lines_total 3")
	assert.Contains(t, out, "invoice_converter_records_total 2")
	assert.Contains(t, out, `invoice_converter_conversion_duration_seconds_count{source="pdf"} 1`)
}

func TestObserveExportAndAdvisor(t *testing.T) {
	m := New()
	m.ObserveExport("xlsx")
	m.ObserveExport("xlsx")
	m.ObserveAdvisor("cached")

	out := scrape(t, m)
	assert.Contains(t, out, `invoice_converter_exports_total{format="xlsx"} 2`)
	assert.Contains(t, out, `invoice_converter_advisor_requests_total{result="cached"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveExport("csv")
	assert.NotContains(t, scrape(t, b), `exports_total{format="csv"}`)
}
