package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/invoice-item-converter/internal/advisor"
	"github.com/insightdelivered/invoice-item-converter/internal/config"
	"github.com/insightdelivered/invoice-item-converter/internal/metrics"
	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

const taggedInvoice = `Gulf Trading Co
Invoice No: INV-2024-0117
Date: 15/01/2024
Description Qty Price
Steel Bracket SR 15.50 2 AB-100 1
Wall Drill SR 45.00 3 WDX-9 2
Total SR 166.00`

type stubAdvisor struct {
	summary *advisor.Summary
	err     error
	calls   int
}

func (s *stubAdvisor) Summarize(ctx context.Context, records []models.OutputRecord) (*advisor.Summary, error) {
	s.calls++
	return s.summary, s.err
}

func setupTestApp(h *Handler) *fiber.App {
	if h == nil {
		h = NewHandler(config.ParserConfig{CurrencyTag: "SR"})
	}
	return NewApp(h, 0)
}

func multipartRequest(t *testing.T, fields map[string]string, fileName, fileBody string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, fileBody)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeConvert(t *testing.T, resp *http.Response) ConvertResponse {
	t.Helper()
	var out ConvertResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(nil)

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	var result map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, "fiber", result["engine"])
	assert.Equal(t, Version, result["version"])
}

func TestConvertEndpointRequiresFile(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(multipartRequest(t, map[string]string{"vendor": "Acme"}, "", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	out := decodeConvert(t, resp)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "No file uploaded")
	assert.NotEmpty(t, out.RequestID)
}

func TestConvertRejectsUnsupportedFile(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(multipartRequest(t, nil, "invoice.docx", "hello"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertTextUpload(t *testing.T) {
	app := setupTestApp(nil)

	req := multipartRequest(t, map[string]string{
		"vendor":   "Gulf Trading Co",
		"discount": "10",
		"vat":      "15",
	}, "invoice.txt", taggedInvoice)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeConvert(t, resp)
	assert.True(t, out.Success)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "AB-100", out.Records[0].ProductCode)
	assert.Equal(t, "WDX-9", out.Records[1].ProductCode)
	assert.InDelta(t, 2*15.5*0.9*1.15, out.Records[0].LineSubtotal, 1e-9)
	assert.InDelta(t, 2*15.5*0.9*1.15+3*45*0.9*1.15, out.GrandTotal, 1e-9)
	assert.True(t, out.Structure.HasTaggedAmount)
	assert.Equal(t, "INV-2024-0117", out.Header.InvoiceNumber)
	assert.Contains(t, out.CSV, "# Invoice Number,INV-2024-0117")
	assert.Equal(t, taggedInvoice, out.RawText)
	assert.NotEmpty(t, out.DebugLines)
}

func TestConvertExtractedText(t *testing.T) {
	app := setupTestApp(nil)

	pages := "Acme Supplies\nWidget WDX-9 12 45.00" + pageBreak + "Gadget GT-20 1 5.00"
	resp, err := app.Test(multipartRequest(t, map[string]string{"extractedText": pages, "vendor": "Acme"}, "", ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeConvert(t, resp)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "WDX-9", out.Records[0].ProductCode)
	assert.Equal(t, 12.0, out.Records[0].Quantity)
	assert.Equal(t, 45.0, out.Records[0].UnitPrice)
	assert.Equal(t, "GT-20", out.Records[1].ProductCode)
}

func TestConvertUsesHeaderVendorWhenOmitted(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(multipartRequest(t, nil, "invoice.txt", taggedInvoice))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeConvert(t, resp)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "Gulf Trading Co", out.Records[0].VendorName)
	assert.Equal(t, "Gulf Trading Co", out.Header.VendorName)
}

func TestConvertBlankText(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(multipartRequest(t, nil, "blank.txt", "   \n\n"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decodeConvert(t, resp).Error, "No text found")
}

func TestConvertNoItems(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(multipartRequest(t, nil, "letter.txt", "Dear customer\nThank you for your order"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeConvert(t, resp)
	assert.True(t, out.Success)
	assert.NotNil(t, out.Records)
	assert.Zero(t, out.Count)
	assert.NotEmpty(t, out.Warnings)
}

func TestConvertInvalidNumber(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(multipartRequest(t, map[string]string{"vat": "fifteen"}, "invoice.txt", taggedInvoice))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeConvert(t, resp).Error, "Invalid vat")
}

func TestConvertPercentSuffix(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(multipartRequest(t, map[string]string{"vat": "15%"}, "invoice.txt", taggedInvoice))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decodeConvert(t, resp)
	assert.InDelta(t, 31*1.15, out.Records[0].LineSubtotal, 1e-9)
}

func TestConvertDefaultsFromConfig(t *testing.T) {
	h := NewHandler(config.ParserConfig{CurrencyTag: "SR", DefaultVendor: "Configured Vendor", VATPct: 5})
	app := setupTestApp(h)

	resp, err := app.Test(multipartRequest(t, nil, "invoice.txt", taggedInvoice))
	require.NoError(t, err)
	out := decodeConvert(t, resp)
	require.NotEmpty(t, out.Records)
	assert.Equal(t, "Configured Vendor", out.Records[0].VendorName)
	assert.InDelta(t, 31*1.05, out.Records[0].LineSubtotal, 1e-9)
}

func TestConvertWithSummary(t *testing.T) {
	stub := &stubAdvisor{summary: &advisor.Summary{Text: "Two items, nothing unusual."}}
	h := NewHandler(config.ParserConfig{CurrencyTag: "SR"})
	h.Advisor = stub
	h.Metrics = metrics.New()
	app := setupTestApp(h)

	resp, err := app.Test(multipartRequest(t, map[string]string{"summarize": "true"}, "invoice.txt", taggedInvoice))
	require.NoError(t, err)
	out := decodeConvert(t, resp)
	require.NotNil(t, out.Summary)
	assert.Equal(t, "Two items, nothing unusual.", out.Summary.Text)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, 1, stub.calls)
}

func TestConvertSummaryFailureIsWarning(t *testing.T) {
	stub := &stubAdvisor{err: errors.Join(advisor.ErrAdvisorUnavailable, errors.New("connection refused"))}
	h := NewHandler(config.ParserConfig{CurrencyTag: "SR"})
	h.Advisor = stub
	app := setupTestApp(h)

	resp, err := app.Test(multipartRequest(t, map[string]string{"summarize": "true"}, "invoice.txt", taggedInvoice))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeConvert(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Count)
	assert.Nil(t, out.Summary)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "unavailable")
}

func TestConvertSummaryWithoutAdvisor(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(multipartRequest(t, map[string]string{"summarize": "true"}, "invoice.txt", taggedInvoice))
	require.NoError(t, err)
	out := decodeConvert(t, resp)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.Warnings)
}

func exportRequest(t *testing.T, format string, body ExportRequest) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/export/"+format, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestExportEndpoint(t *testing.T) {
	body := ExportRequest{
		Header: models.InvoiceHeader{InvoiceNumber: "INV/2024/17", CurrencyTag: "SR"},
		Records: []models.OutputRecord{
			{VendorName: "Acme", ProductCode: "AB-1", Description: "Widget", Quantity: 2, UnitPrice: 10, LineSubtotal: 20, TotalAmount: 20},
		},
		IncludeHeader: true,
	}

	tests := []struct {
		format      string
		contentType string
		prefix      string
	}{
		{"csv", "text/csv", "# Invoice Number"},
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "PK"},
		{"pdf", "application/pdf", "%PDF"},
	}

	h := NewHandler(config.ParserConfig{})
	h.Metrics = metrics.New()
	app := setupTestApp(h)

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resp, err := app.Test(exportRequest(t, tt.format, body))
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get(fiber.HeaderContentType))
			assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "invoice-INV-2024-17."+tt.format)

			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(data), tt.prefix), "unexpected %s output prefix", tt.format)
		})
	}
}

func TestExportUnknownFormat(t *testing.T) {
	app := setupTestApp(nil)

	resp, err := app.Test(exportRequest(t, "docx", ExportRequest{}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExportInvalidBody(t *testing.T) {
	app := setupTestApp(nil)

	req := httptest.NewRequest("POST", "/api/export/csv", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(config.ParserConfig{CurrencyTag: "SR"})
	h.Metrics = metrics.New()
	app := setupTestApp(h)

	_, err := app.Test(multipartRequest(t, nil, "invoice.txt", taggedInvoice))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `invoice_converter_documents_total{format="tagged-amount",source="text"} 1`)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
	long := strings.Repeat("x", rawPreviewLimit+1)
	assert.Len(t, preview(long, rawPreviewLimit), rawPreviewLimit+3)
}
