// Package pricing applies the document-wide discount and VAT percentages to
// invoice lines.
//
// The arithmetic in LineSubtotal is plain float64 and unrounded so a run can
// be reproduced exactly from its inputs. Rounding and currency formatting are
// display concerns and live in Round2 and Format, which the writers use.
package pricing

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// LineSubtotal returns quantity × unitPrice with the discount removed and VAT
// added. Percentages are not clamped; values outside [0,100] are a caller error.
func LineSubtotal(quantity, unitPrice, discountPct, vatPct float64) float64 {
	discountFactor := 1 - discountPct/100
	vatFactor := 1 + vatPct/100
	return quantity * unitPrice * discountFactor * vatFactor
}

// NetAmount is the discounted line amount before VAT.
func NetAmount(quantity, unitPrice, discountPct float64) float64 {
	return quantity * unitPrice * (1 - discountPct/100)
}

// VATAmount is the VAT part of a line subtotal.
func VATAmount(quantity, unitPrice, discountPct, vatPct float64) float64 {
	return NetAmount(quantity, unitPrice, discountPct) * vatPct / 100
}

// Sum adds amounts in decimal so long documents do not accumulate float drift.
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.InexactFloat64()
}

// Round2 rounds half away from zero to two decimal places.
func Round2(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// currencyAliases maps invoice currency tags that are not ISO-4217 codes.
var currencyAliases = map[string]string{
	"SR":  money.SAR,
	"RS":  money.INR,
	"DHS": money.AED,
	"KD":  money.KWD,
}

// Format renders an amount for display as "TAG 1,234.50". The tag is printed
// as it appears on the invoice; grouping and minor units follow the ISO
// currency the tag resolves to, or two decimals when it resolves to none.
func Format(amount float64, tag string) string {
	tag = strings.TrimSpace(tag)
	code := strings.ToUpper(tag)
	if alias, ok := currencyAliases[code]; ok {
		code = alias
	}

	f := money.NewFormatter(2, ".", ",", tag, "$ 1")
	if currency := money.GetCurrency(code); currency != nil {
		f = currency.Formatter()
		f.Grapheme = tag
		f.Template = "$ 1"
	}
	if tag == "" {
		f.Template = "1"
	}

	multiplier := decimal.New(1, int32(f.Fraction))
	minor := decimal.NewFromFloat(amount).Mul(multiplier).Round(0).IntPart()
	return f.Format(minor)
}
