package checkout

import (
	"fmt"
	"regexp"
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Format describes how the shop writes amounts
type Format struct {
	Currency     string
	Position     string // "before" or "after"
	ThousandsSep string
	DecimalSep   string
}

// DefaultFormat is US dollars with "," grouping and "." decimals
var DefaultFormat = Format{Currency: "USD", Position: "before", ThousandsSep: ",", DecimalSep: "."}

var nonAmountChars = regexp.MustCompile(`[^0-9.]`)

var currencySymbols = map[string]string{
	"USD": "$",
	"AUD": "$",
	"CAD": "$",
	"NZD": "$",
	"HKD": "$",
	"SGD": "$",
	"MXN": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"BRL": "R$",
	"INR": "₹",
	"RUB": "₽",
	"TRY": "₺",
	"ILS": "₪",
	"KRW": "₩",
}

// CurrencySymbol returns the symbol for a currency code, or the code itself
func CurrencySymbol(code string) string {
	if sym, ok := currencySymbols[strings.ToUpper(code)]; ok {
		return sym
	}
	return strings.ToUpper(code)
}

// LinePrice resolves the price of one cart line. The variable tier selected
// by PriceID wins when the download has variable pricing and the tier
// exists; otherwise the flat price applies.
func LinePrice(d *models.Download, opts Options) decimal.Decimal {
	if opts.PriceID != nil && d.VariablePricing {
		prices := d.VariablePrices()
		id := *opts.PriceID
		if id >= 0 && id < len(prices) {
			return prices[id].Amount
		}
	}
	return d.Price
}

// PriceName returns the tier name for a line, empty for flat prices
func PriceName(d *models.Download, opts Options) string {
	if opts.PriceID == nil || !d.VariablePricing {
		return ""
	}
	prices := d.VariablePrices()
	id := *opts.PriceID
	if id < 0 || id >= len(prices) {
		return ""
	}
	return prices[id].Name
}

// SanitizeAmount parses a user or locale formatted amount. Separators are
// normalized per the shop format, anything that is not a digit or the
// decimal point is stripped, and the result is rounded to two places.
// Unparseable input yields zero.
func SanitizeAmount(raw string, f Format) decimal.Decimal {
	amount := strings.TrimSpace(raw)
	negative := strings.HasPrefix(amount, "-")

	if f.DecimalSep == "," && strings.Contains(amount, ",") {
		switch {
		case (f.ThousandsSep == "." || f.ThousandsSep == " ") && strings.Contains(amount, f.ThousandsSep):
			amount = strings.ReplaceAll(amount, f.ThousandsSep, "")
		case f.ThousandsSep == "" && strings.Contains(amount, "."):
			amount = strings.ReplaceAll(amount, ".", "")
		}
		amount = strings.ReplaceAll(amount, ",", ".")
	} else if f.ThousandsSep == "," && strings.Contains(amount, ",") {
		amount = strings.ReplaceAll(amount, ",", "")
	}

	amount = nonAmountChars.ReplaceAllString(amount, "")
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero
	}
	value = value.Round(2)
	if negative {
		value = value.Neg()
	}
	return value
}

// FormatAmount renders an amount with two decimals and the shop separators
func FormatAmount(amount decimal.Decimal, f Format) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteString(f.ThousandsSep)
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if amount.IsNegative() && !amount.Round(2).IsZero() {
		sign = "-"
	}
	return sign + grouped.String() + f.DecimalSep + frac
}

// CurrencyFilter places the currency symbol around a formatted amount. A
// leading minus sign stays in front of the symbol.
func CurrencyFilter(formatted string, f Format) string {
	negative := strings.HasPrefix(formatted, "-")
	formatted = strings.TrimPrefix(formatted, "-")

	symbol := CurrencySymbol(f.Currency)
	var out string
	switch f.Position {
	case "after":
		out = formatted + symbol
	default:
		out = symbol + formatted
	}

	if negative {
		return "-" + out
	}
	return out
}

// Money formats and currency-filters an amount in one step
func Money(amount decimal.Decimal, f Format) string {
	return CurrencyFilter(FormatAmount(amount, f), f)
}

// Line is a priced cart line
type Line struct {
	Item      CartItem        `json:"item"`
	Title     string          `json:"title"`
	PriceName string          `json:"price_name,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// PriceCart prices every cart line against the loaded downloads
func PriceCart(cart *Cart, downloads map[int64]*models.Download) ([]Line, error) {
	lines := make([]Line, 0, cart.Len())
	for _, item := range cart.Items {
		d, ok := downloads[item.DownloadID]
		if !ok {
			return nil, fmt.Errorf("download %d in cart not found", item.DownloadID)
		}
		lines = append(lines, Line{
			Item:      item,
			Title:     d.Title,
			PriceName: PriceName(d, item.Options),
			Amount:    LinePrice(d, item.Options),
		})
	}
	return lines, nil
}

// Subtotal sums the line amounts
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
	}
	return total
}
