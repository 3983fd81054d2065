package parser

import (
	"github.com/insightdelivered/invoice-item-converter/internal/models"
	"github.com/insightdelivered/invoice-item-converter/internal/pricing"
)

// AssembleRecords joins the vendor with every item that has a product code,
// in the order given, attaching the discounted, VAT-inclusive subtotal.
// Each record also carries the document grand total, as ERP import sheets
// expect it on every row.
func AssembleRecords(vendor string, items []models.ParsedItem, discountPct, vatPct float64) []models.OutputRecord {
	records := make([]models.OutputRecord, 0, len(items))
	subtotals := make([]float64, 0, len(items))

	for _, item := range items {
		if !item.Valid() {
			continue
		}
		subtotal := pricing.LineSubtotal(item.Quantity, item.UnitPrice, discountPct, vatPct)
		subtotals = append(subtotals, subtotal)
		records = append(records, models.OutputRecord{
			VendorName:   vendor,
			ProductCode:  item.ProductCode,
			Description:  item.Description,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineSubtotal: subtotal,
			VATAmount:    pricing.VATAmount(item.Quantity, item.UnitPrice, discountPct, vatPct),
		})
	}

	total := pricing.Sum(subtotals...)
	for i := range records {
		records[i].TotalAmount = total
	}

	return records
}
