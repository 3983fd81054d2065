package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/invoice-item-converter/internal/advisor"
	"github.com/insightdelivered/invoice-item-converter/internal/config"
	"github.com/insightdelivered/invoice-item-converter/internal/extractor"
	"github.com/insightdelivered/invoice-item-converter/internal/logger"
	"github.com/insightdelivered/invoice-item-converter/internal/metrics"
	"github.com/insightdelivered/invoice-item-converter/internal/models"
	"github.com/insightdelivered/invoice-item-converter/internal/parser"
	"github.com/insightdelivered/invoice-item-converter/internal/writer"
)

// Version is reported by the health endpoint.
const Version = "1.2.0"

// pageBreak separates pages in client-extracted text (pdf.js in the browser).
const pageBreak = "\n---PAGE_BREAK---\n"

// rawPreviewLimit caps the raw text returned for diagnostics.
const rawPreviewLimit = 2000

// ConvertResponse is the JSON response from the /api/convert endpoint.
type ConvertResponse struct {
	Success    bool                       `json:"success"`
	Error      string                     `json:"error,omitempty"`
	RequestID  string                     `json:"requestId,omitempty"`
	Header     *models.InvoiceHeader      `json:"header,omitempty"`
	Structure  *models.StructureSignature `json:"structure,omitempty"`
	Records    []models.OutputRecord      `json:"records"`
	Candidates []models.CandidateLine     `json:"candidates,omitempty"`
	CSV        string                     `json:"csv,omitempty"`
	GrandTotal float64                    `json:"grandTotal"`
	Count      int                        `json:"count"`
	RawText    string                     `json:"rawText,omitempty"`
	Version    string                     `json:"version,omitempty"`
	DebugLines []models.DebugLine         `json:"debugLines,omitempty"`
	Summary    *advisor.Summary           `json:"summary,omitempty"`
	Warnings   []string                   `json:"warnings,omitempty"`
}

// ExportRequest is the JSON body of /api/export/:format.
type ExportRequest struct {
	Header        models.InvoiceHeader  `json:"header"`
	Records       []models.OutputRecord `json:"records"`
	IncludeHeader bool                  `json:"includeHeader"`
	IncludeTotals bool                  `json:"includeTotals"`
}

// Summarizer reviews converted records. *advisor.Advisor implements it.
type Summarizer interface {
	Summarize(ctx context.Context, records []models.OutputRecord) (*advisor.Summary, error)
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	StaticDir string
	// Defaults fill in form fields the request leaves empty.
	Defaults config.ParserConfig
	// Advisor is optional; without it summarize requests get a warning.
	Advisor        Summarizer
	AdvisorTimeout time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics

	log zerolog.Logger
}

// NewHandler returns a handler using the given parser defaults.
func NewHandler(defaults config.ParserConfig) *Handler {
	return &Handler{
		Defaults:       defaults,
		AdvisorTimeout: 60 * time.Second,
		log:            logger.WithComponent("api"),
	}
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
		"engine":  "fiber",
	})
}

// HandleConvert accepts a multipart upload (field "file", a PDF or plain
// text) or pre-extracted text (field "extractedText") and returns the
// records with the intermediate artifacts.
func (h *Handler) HandleConvert(c *fiber.Ctx) error {
	start := time.Now()
	rid := requestID(c)

	discount, err := floatField(c, "discount", h.Defaults.DiscountPct)
	if err != nil {
		return writeFiberError(c, err)
	}
	vat, err := floatField(c, "vat", h.Defaults.VATPct)
	if err != nil {
		return writeFiberError(c, err)
	}
	tag := c.FormValue("tag", h.Defaults.CurrencyTag)
	vendor := c.FormValue("vendor", h.Defaults.DefaultVendor)
	includeHeader := c.FormValue("header") != "false"
	includeTotals := c.FormValue("totals") == "true"
	summarize := c.FormValue("summarize") == "true"

	text, source, err := h.readText(c)
	if err != nil {
		return writeFiberError(c, err)
	}
	if err := extractor.CheckText(text); err != nil {
		return writeError(c, fiber.StatusUnprocessableEntity, "No text found in document. Scanned invoices need OCR first.")
	}

	doc := parser.ToOutputRecords(text, vendor, discount, vat, parser.WithCurrencyTag(tag), parser.WithHeaderVendor())
	if h.Metrics != nil {
		h.Metrics.ObserveConversion(source, doc, time.Since(start))
	}

	h.log.Info().
		Str("request_id", rid).
		Str("source", source).
		Int("lines", len(doc.DebugLines)).
		Int("candidates", len(doc.Candidates)).
		Int("records", len(doc.Records)).
		Bool("tagged", doc.Structure.HasTaggedAmount).
		Dur("elapsed", time.Since(start)).
		Msg("Invoice converted")

	var csvBuf bytes.Buffer
	csvWriter := &writer.CSVWriter{Options: writer.Options{IncludeHeader: includeHeader, IncludeTotals: includeTotals}}
	if err := csvWriter.Write(&csvBuf, doc); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err))
	}

	resp := ConvertResponse{
		Success:    true,
		RequestID:  rid,
		Header:     &doc.Header,
		Structure:  &doc.Structure,
		Records:    doc.Records,
		Candidates: doc.Candidates,
		CSV:        csvBuf.String(),
		Count:      len(doc.Records),
		RawText:    preview(doc.RawText, rawPreviewLimit),
		Version:    Version,
		DebugLines: doc.DebugLines,
	}
	if len(doc.Records) > 0 {
		resp.GrandTotal = doc.Records[0].TotalAmount
	} else {
		resp.Warnings = append(resp.Warnings, "No line items found. The invoice layout may not match the expected patterns.")
	}

	if summarize && len(doc.Records) > 0 {
		summary, warning := h.summarize(c.UserContext(), rid, doc.Records)
		resp.Summary = summary
		if warning != "" {
			resp.Warnings = append(resp.Warnings, warning)
		}
	}

	return c.JSON(resp)
}

// HandleExport renders posted records as a CSV, XLSX or PDF download.
func (h *Handler) HandleExport(c *fiber.Ctx) error {
	var req ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid export request: %v", err))
	}

	w, err := writer.New(writer.Format(c.Params("format")), writer.Options{
		IncludeHeader: req.IncludeHeader,
		IncludeTotals: req.IncludeTotals,
	})
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	records := req.Records
	if records == nil {
		records = []models.OutputRecord{}
	}
	doc := &models.Document{Header: req.Header, Records: records}

	var buf bytes.Buffer
	if err := w.Write(&buf, doc); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
	}
	if h.Metrics != nil {
		h.Metrics.ObserveExport(strings.TrimPrefix(w.Extension(), "."))
	}

	c.Attachment(exportName(req.Header) + w.Extension())
	c.Set(fiber.HeaderContentType, w.ContentType())
	return c.Send(buf.Bytes())
}

// readText returns the document text from the request and where it came
// from ("client", "pdf" or "text"). Errors are *fiber.Error values.
func (h *Handler) readText(c *fiber.Ctx) (string, string, error) {
	if extracted := c.FormValue("extractedText"); strings.TrimSpace(extracted) != "" {
		var pages []string
		for _, page := range strings.Split(extracted, pageBreak) {
			if page = strings.TrimSpace(page); page != "" {
				pages = append(pages, page)
			}
		}
		return strings.Join(pages, "\n"), "client", nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".pdf" && ext != ".txt" {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "Only PDF and plain text files are supported.")
	}

	f, err := fh.Open()
	if err != nil {
		return "", "", fiber.NewError(fiber.StatusInternalServerError, "Failed to read uploaded file.")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", fiber.NewError(fiber.StatusInternalServerError, "Failed to read uploaded file.")
	}

	if ext == ".txt" {
		return string(data), "text", nil
	}

	text, err := extractor.ExtractTextFromBytes(data)
	if err != nil {
		return "", "", fiber.NewError(fiber.StatusUnprocessableEntity, fmt.Sprintf("PDF extraction failed: %v", err))
	}
	return text, "pdf", nil
}

// summarize asks the advisor for a review. Failures become a warning.
func (h *Handler) summarize(ctx context.Context, rid string, records []models.OutputRecord) (*advisor.Summary, string) {
	if h.Advisor == nil {
		return nil, "Summary requested but the advisor is not configured."
	}

	if h.AdvisorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.AdvisorTimeout)
		defer cancel()
	}

	summary, err := h.Advisor.Summarize(ctx, records)
	if err != nil {
		h.log.Warn().Err(err).Str("request_id", rid).Msg("Summary failed")
		if h.Metrics != nil {
			h.Metrics.ObserveAdvisor("error")
		}
		if errors.Is(err, advisor.ErrMalformedResponse) {
			return nil, "The advisor returned an unreadable summary."
		}
		return nil, "The advisor is unavailable; records were converted without a summary."
	}

	if h.Metrics != nil {
		if summary.Cached {
			h.Metrics.ObserveAdvisor("cached")
		} else {
			h.Metrics.ObserveAdvisor("ok")
		}
	}
	return summary, ""
}

func floatField(c *fiber.Ctx, key string, def float64) (float64, error) {
	raw := strings.TrimSpace(c.FormValue(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid %s: %q is not a number.", key, raw))
	}
	return v, nil
}

// preview truncates s to limit runes, marking the cut with "...".
func preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func exportName(h models.InvoiceHeader) string {
	if h.InvoiceNumber == "" {
		return "invoice-items"
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, h.InvoiceNumber)
	return "invoice-" + name
}

func requestID(c *fiber.Ctx) string {
	if rid, ok := c.Locals(requestIDKey).(string); ok {
		return rid
	}
	return ""
}

// writeFiberError writes err as a JSON error envelope, using its status
// when it is a *fiber.Error.
func writeFiberError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return writeError(c, fe.Code, fe.Message)
	}
	return writeError(c, fiber.StatusInternalServerError, err.Error())
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ConvertResponse{
		Success:   false,
		Error:     msg,
		RequestID: requestID(c),
	})
}
