package checkout

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var nonKeyChars = regexp.MustCompile(`[^a-z0-9_\-]`)

// SanitizeKey lower-cases s and strips everything but a-z, 0-9, "_" and "-"
func SanitizeKey(s string) string {
	return nonKeyChars.ReplaceAllString(strings.ToLower(s), "")
}

// Fee is a named, signed adjustment to the cart total
type Fee struct {
	Key    string          `json:"key"`
	Amount decimal.Decimal `json:"amount"`
	Label  string          `json:"label"`
}

// Fees is an insertion-ordered set of fees keyed by sanitized id
type Fees struct {
	items []Fee
}

// Add stores a fee under the sanitized id, or the sanitized label when id is
// empty. An existing fee with the same key is replaced in place.
func (f *Fees) Add(amount decimal.Decimal, label, id string) (string, error) {
	key := SanitizeKey(id)
	if key == "" {
		key = SanitizeKey(label)
	}
	if key == "" {
		return "", fmt.Errorf("%w: fee needs an id or a label", ErrInvalidArgument)
	}

	fee := Fee{Key: key, Amount: amount, Label: label}
	for i := range f.items {
		if f.items[i].Key == key {
			f.items[i] = fee
			return key, nil
		}
	}
	f.items = append(f.items, fee)
	return key, nil
}

// Remove drops the fee stored under id
func (f *Fees) Remove(id string) bool {
	key := SanitizeKey(id)
	for i := range f.items {
		if f.items[i].Key == key {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

// All returns the fees in insertion order
func (f *Fees) All() []Fee {
	out := make([]Fee, len(f.items))
	copy(out, f.items)
	return out
}

// Has reports whether any fee is set
func (f *Fees) Has() bool {
	return len(f.items) > 0
}

// Total is the signed sum of all fees, rounded to two places
func (f *Fees) Total() decimal.Decimal {
	total := decimal.Zero
	for _, fee := range f.items {
		total = total.Add(fee.Amount)
	}
	return total.Round(2)
}

// Clear removes every fee
func (f *Fees) Clear() {
	f.items = nil
}

// MarshalJSON encodes the fees as an ordered list
func (f Fees) MarshalJSON() ([]byte, error) {
	if f.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f.items)
}

// UnmarshalJSON decodes an ordered fee list
func (f *Fees) UnmarshalJSON(data []byte) error {
	var items []Fee
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	f.items = items
	return nil
}
