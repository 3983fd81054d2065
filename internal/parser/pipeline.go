// Package parser turns extracted invoice text into ERP line-item records.
//
// The pipeline is: normalize lines, detect the layout signals near the top
// of the document, classify item lines with the policy those signals select,
// parse each candidate into typed fields, and assemble records for the items
// that carry a product code. Every step is a pure function of its inputs, so
// documents can be processed concurrently without coordination.
package parser

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

// options configures a pipeline run.
type options struct {
	tag            string
	includeRawText bool
	headerVendor   bool
}

// Option customises ToOutputRecords.
type Option func(*options)

// WithCurrencyTag sets the currency literal that prefixes tagged amounts.
func WithCurrencyTag(tag string) Option {
	return func(o *options) { o.tag = tag }
}

// WithoutRawText leaves Document.RawText empty, for callers that keep the
// source text themselves.
func WithoutRawText() Option {
	return func(o *options) { o.includeRawText = false }
}

// WithHeaderVendor stamps records with the vendor found in the document
// header when the caller passes an empty vendor name.
func WithHeaderVendor() Option {
	return func(o *options) { o.headerVendor = true }
}

// ToOutputRecords runs the whole pipeline over one document. The returned
// Document carries the records together with the raw text, the candidate
// lines and the structure signature for diagnostics. Empty or whitespace
// text yields an empty record list, never an error.
func ToOutputRecords(text, vendorName string, discountPct, vatPct float64, opts ...Option) *models.Document {
	o := options{tag: DefaultCurrencyTag, includeRawText: true}
	for _, opt := range opts {
		opt(&o)
	}
	tag := tagOrDefault(o.tag)

	lines := NormalizeLines(text)
	sig := DetectStructure(lines, tag)
	header := ExtractHeader(lines, tag)
	switch {
	case vendorName != "":
		header.VendorName = vendorName
	case o.headerVendor:
		vendorName = header.VendorName
	}

	candidates, debug := classifyLines(lines, PolicyFor(sig, tag))

	items := make([]models.ParsedItem, 0, len(candidates))
	for _, c := range candidates {
		item := ParseLine(c, tag)
		dl := &debug[c.LineNum-1]
		if item.Valid() {
			dl.Result = "parsed"
		} else {
			dl.Result = "rejected"
			dl.Reason = "no product code"
		}
		items = append(items, item)
	}

	doc := &models.Document{
		Header:     header,
		Structure:  sig,
		Candidates: candidates,
		Records:    AssembleRecords(vendorName, items, discountPct, vatPct),
		DebugLines: debug,
	}
	if o.includeRawText {
		doc.RawText = text
	}
	return doc
}

// BatchInput is one document of a batch conversion.
type BatchInput struct {
	Name       string
	Text       string
	VendorName string
}

// ConvertBatch runs ToOutputRecords over many documents with at most
// workers running at once. Results are returned in input order. The only
// error is the context's, when it is cancelled before all documents ran.
func ConvertBatch(ctx context.Context, inputs []BatchInput, discountPct, vatPct float64, workers int, opts ...Option) ([]*models.Document, error) {
	if workers < 1 {
		workers = 1
	}
	docs := make([]*models.Document, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs[i] = ToOutputRecords(in.Text, in.VendorName, discountPct, vatPct, opts...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}
