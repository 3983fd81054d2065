package models

// LineFormat identifies which item-line layout a candidate line was classified as.
type LineFormat string

const (
	FormatTagged  LineFormat = "tagged-amount"
	FormatGeneric LineFormat = "generic"
)

// StructureSignature reports which layout signals appear near the top of a document.
type StructureSignature struct {
	HasTaggedAmount   bool `json:"hasTaggedAmount"`
	HasModelCode      bool `json:"hasModelCode"`
	HasQuantityHeader bool `json:"hasQuantityHeader"`
	HasPriceHeader    bool `json:"hasPriceHeader"`
	TotalLineCount    int  `json:"totalLineCount"`
}

// CandidateLine is a normalized line that may describe one purchasable item.
type CandidateLine struct {
	Format  LineFormat `json:"format"`
	Text    string     `json:"text"`
	LineNum int        `json:"lineNum"` // 1-based index into the normalized lines
}

// ParsedItem holds the typed fields of one candidate line.
// An empty ProductCode means the line did not describe a product.
type ParsedItem struct {
	ProductCode string  `json:"productCode"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// Valid reports whether the item may be turned into an output record.
func (p ParsedItem) Valid() bool {
	return p.ProductCode != ""
}

// OutputRecord is one ERP import row.
type OutputRecord struct {
	VendorName   string  `json:"vendor"`
	ProductCode  string  `json:"productCode"`
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	LineSubtotal float64 `json:"lineSubtotal"`
	VATAmount    float64 `json:"vatAmount,omitempty"`
	TotalAmount  float64 `json:"totalAmount,omitempty"`
}

// InvoiceHeader holds document-level metadata found outside the item lines.
type InvoiceHeader struct {
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	InvoiceDate   string `json:"invoiceDate,omitempty"`
	VendorName    string `json:"vendorName,omitempty"`
	CurrencyTag   string `json:"currencyTag,omitempty"`
}

// DebugLine captures what the extractor did with each normalized line.
type DebugLine struct {
	LineNum int        `json:"lineNum"`
	Text    string     `json:"text"`
	Result  string     `json:"result"` // "parsed", "skipped", "rejected"
	Format  LineFormat `json:"format,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// Document bundles the records of one invoice with the intermediate
// artifacts that produced them.
type Document struct {
	Header     InvoiceHeader      `json:"header"`
	Structure  StructureSignature `json:"structure"`
	Candidates []CandidateLine    `json:"candidates"`
	Records    []OutputRecord     `json:"records"`
	RawText    string             `json:"rawText,omitempty"`
	DebugLines []DebugLine        `json:"debugLines,omitempty"`
}
