package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/insightdelivered/invoice-item-converter/internal/advisor"
	"github.com/insightdelivered/invoice-item-converter/internal/cache"
	"github.com/insightdelivered/invoice-item-converter/internal/config"
	"github.com/insightdelivered/invoice-item-converter/internal/extractor"
	"github.com/insightdelivered/invoice-item-converter/internal/logger"
	"github.com/insightdelivered/invoice-item-converter/internal/models"
	"github.com/insightdelivered/invoice-item-converter/internal/parser"
	"github.com/insightdelivered/invoice-item-converter/internal/pricing"
	"github.com/insightdelivered/invoice-item-converter/internal/writer"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalf("Configuration error: %v\n", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	// CLI flags, defaulting to the environment configuration
	vendorFlag := flag.String("vendor", cfg.Parser.DefaultVendor, "Vendor name stamped on every record (read from the invoice if omitted)")
	discountFlag := flag.Float64("discount", cfg.Parser.DiscountPct, "Discount percentage applied to every line")
	vatFlag := flag.Float64("vat", cfg.Parser.VATPct, "VAT percentage added after the discount")
	tagFlag := flag.String("tag", cfg.Parser.CurrencyTag, "Currency tag that prefixes amounts on item lines")
	formatFlag := flag.String("format", "", "Output format: csv, xlsx or pdf (default csv, or pdf for .csv input)")
	outputFlag := flag.String("output", "", "Output file path, or a directory when converting several files")
	headerFlag := flag.Bool("header", true, "Include invoice metadata (number, date, vendor)")
	totalsFlag := flag.Bool("totals", false, "Include VAT amount and grand total columns")
	workersFlag := flag.Int("workers", cfg.Parser.Workers, "Documents parsed in parallel")
	summarizeFlag := flag.Bool("summarize", false, "Ask the configured advisor to review the extracted items")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Invoice Line-Item Converter
by Insight Delivered (QEA AutoLens)

Extracts purchasable line items from supplier invoices and writes them as
ERP import rows (CSV, Odoo XLSX) or as a printable PDF.

Usage:
  invoice-item-converter [flags] <invoice.pdf|invoice.txt|items.csv> ...

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Convert a PDF invoice to CSV
  invoice-item-converter invoice.pdf

  # Odoo workbook with 10%% discount and 15%% VAT
  invoice-item-converter --format=xlsx --discount=10 --vat=15 invoice.pdf

  # Invoices priced in dirhams
  invoice-item-converter --tag=AED --vendor="Gulf Trading" invoice.pdf

  # Convert several files into one directory
  invoice-item-converter --output=out/ jan.pdf feb.pdf mar.pdf

  # Render a previously exported CSV as a PDF
  invoice-item-converter items.csv

Line formats:
  tagged   - "<desc> SR 25.50 3 ABC-100 7" (currency tag, qty, code, line no.)
  generic  - "<desc> WDX-9 12 45.00" (model code, qty, unit price)
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("invoice-item-converter v%s\n", version)
		os.Exit(0)
	}

	if *helpFlag || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	var format writer.Format
	if *formatFlag != "" {
		format = writer.Format(strings.ToLower(*formatFlag))
		if _, err := writer.New(format, writer.Options{}); err != nil {
			fatalf("%v. Supported: csv, xlsx, pdf\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	run := &runner{
		vendor:   *vendorFlag,
		discount: *discountFlag,
		vat:      *vatFlag,
		tag:      *tagFlag,
		format:   format,
		output:   *outputFlag,
		opts:     writer.Options{IncludeHeader: *headerFlag, IncludeTotals: *totalsFlag},
		workers:  *workersFlag,
	}
	if *summarizeFlag {
		if !cfg.Advisor.Enabled {
			fmt.Fprintln(os.Stderr, "Warning: --summarize ignored, set ADVISOR_ENABLED=true and ADVISOR_API_KEY to use it.")
		} else {
			run.advisor = advisor.New(advisor.Config{
				BaseURL:           cfg.Advisor.BaseURL,
				APIKey:            cfg.Advisor.APIKey,
				Model:             cfg.Advisor.Model,
				MaxTokens:         cfg.Advisor.MaxTokens,
				RequestsPerMinute: cfg.Advisor.RequestsPerMinute,
				SampleSize:        cfg.Advisor.SampleSize,
				Timeout:           cfg.Advisor.Timeout,
			}, cache.New[advisor.Summary](cfg.Cache.TTL))
		}
	}

	if err := run.process(ctx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runner struct {
	vendor   string
	discount float64
	vat      float64
	tag      string
	format   writer.Format
	output   string
	opts     writer.Options
	workers  int
	advisor  *advisor.Advisor
}

// process converts invoices in parallel and re-renders CSV inputs.
func (r *runner) process(ctx context.Context, inputPaths []string) error {
	multi := len(inputPaths) > 1
	if multi && r.output != "" {
		if err := os.MkdirAll(r.output, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var batch []parser.BatchInput
	for _, inputPath := range inputPaths {
		if _, err := os.Stat(inputPath); os.IsNotExist(err) {
			return fmt.Errorf("input file not found: %s", inputPath)
		}

		switch ext := strings.ToLower(filepath.Ext(inputPath)); ext {
		case ".csv":
			if err := r.renderCSV(inputPath, multi); err != nil {
				return fmt.Errorf("%s: %w", inputPath, err)
			}
		case ".pdf", ".txt":
			fmt.Printf("Reading: %s\n", inputPath)
			text, err := readText(inputPath)
			if err != nil {
				return fmt.Errorf("%s: %w", inputPath, err)
			}
			if errors.Is(extractor.CheckText(text), extractor.ErrNoText) {
				fmt.Printf("  Warning: no text found in %s. Scanned invoices need OCR first.\n", inputPath)
			}
			batch = append(batch, parser.BatchInput{Name: inputPath, Text: text, VendorName: r.vendor})
		default:
			return fmt.Errorf("expected .pdf, .txt or .csv file, got %q", ext)
		}
	}

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	docs, err := parser.ConvertBatch(ctx, batch, r.discount, r.vat, r.workers, parser.WithCurrencyTag(r.tag), parser.WithoutRawText(), parser.WithHeaderVendor())
	if err != nil {
		return fmt.Errorf("conversion interrupted: %w", err)
	}
	log := logger.WithComponent("cli")
	log.Debug().Int("documents", len(docs)).Dur("elapsed", time.Since(start)).Msg("Batch converted")

	for i, doc := range docs {
		if err := r.report(ctx, batch[i].Name, doc, multi); err != nil {
			return fmt.Errorf("%s: %w", batch[i].Name, err)
		}
	}
	return nil
}

func (r *runner) report(ctx context.Context, inputPath string, doc *models.Document, multi bool) error {
	fmt.Printf("Processing: %s\n", inputPath)
	if doc.Structure.HasTaggedAmount {
		fmt.Printf("  Detected %s-tagged item lines\n", doc.Header.CurrencyTag)
	} else {
		fmt.Println("  Using generic item line detection")
	}
	fmt.Printf("  Found %d candidate line(s), %d item(s)\n", len(doc.Candidates), len(doc.Records))

	if len(doc.Records) == 0 {
		fmt.Println("  Warning: No line items found. The invoice layout may not match expected patterns.")
		fmt.Println("  Try --tag if amounts use a currency other than the default.")
	}

	format := r.format
	if format == "" {
		format = writer.FormatCSV
	}
	w, err := writer.New(format, r.opts)
	if err != nil {
		return err
	}

	outPath := r.outputPath(inputPath, w.Extension(), multi)
	if err := writer.WriteToFile(w, outPath, doc); err != nil {
		return fmt.Errorf("%s write failed: %w", strings.ToUpper(string(format)), err)
	}
	fmt.Printf("  Output: %s\n", outPath)

	if doc.Header.InvoiceNumber != "" {
		fmt.Printf("  Invoice number: %s\n", doc.Header.InvoiceNumber)
	}
	if doc.Header.InvoiceDate != "" {
		fmt.Printf("  Invoice date: %s\n", doc.Header.InvoiceDate)
	}
	if doc.Header.VendorName != "" {
		fmt.Printf("  Vendor: %s\n", doc.Header.VendorName)
	}
	if len(doc.Records) > 0 {
		fmt.Printf("  Grand total: %s\n", pricing.Format(doc.Records[0].TotalAmount, doc.Header.CurrencyTag))
	}

	if r.advisor != nil && len(doc.Records) > 0 {
		summary, err := r.advisor.Summarize(ctx, doc.Records)
		if err != nil {
			fmt.Printf("  Warning: summary unavailable: %v\n", err)
		} else {
			fmt.Printf("  Summary: %s\n", summary.Text)
			for _, w := range summary.Warnings {
				fmt.Printf("    - %s\n", w)
			}
		}
	}

	fmt.Println("  Done.")
	return nil
}

// renderCSV reads records exported earlier and writes them in the chosen
// format, PDF by default.
func (r *runner) renderCSV(inputPath string, multi bool) error {
	fmt.Printf("Rendering: %s\n", inputPath)

	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := writer.ReadCSV(f)
	if err != nil {
		return err
	}

	format := r.format
	if format == "" {
		format = writer.FormatPDF
	}
	if format == writer.FormatCSV {
		return errors.New("input is already CSV; choose --format=xlsx or --format=pdf")
	}
	w, err := writer.New(format, r.opts)
	if err != nil {
		return err
	}

	header := models.InvoiceHeader{CurrencyTag: r.tag}
	if len(records) > 0 {
		header.VendorName = records[0].VendorName
	}
	doc := &models.Document{Header: header, Records: records}

	outPath := r.outputPath(inputPath, w.Extension(), multi)
	if err := writer.WriteToFile(w, outPath, doc); err != nil {
		return err
	}
	fmt.Printf("  %d record(s) written to %s\n", len(records), outPath)
	return nil
}

// outputPath honours --output for a single input; with several inputs it is
// the directory the per-file outputs go to.
func (r *runner) outputPath(inputPath, ext string, multi bool) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath)) + ext
	switch {
	case r.output == "":
		return filepath.Join(filepath.Dir(inputPath), base)
	case multi:
		return filepath.Join(r.output, base)
	default:
		return r.output
	}
}

func readText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	text, err := extractor.ExtractText(path)
	if err != nil {
		return "", fmt.Errorf("PDF extraction failed: %w", err)
	}
	return text, nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
