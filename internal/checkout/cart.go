package checkout

import (
	"github.com/google/uuid"
)

// Options are the per-line selections a visitor makes for a download
type Options struct {
	PriceID *int `json:"price_id,omitempty"`
}

// SamePrice reports whether two option sets select the same price tier
func (o Options) SamePrice(other Options) bool {
	if o.PriceID == nil || other.PriceID == nil {
		return o.PriceID == nil && other.PriceID == nil
	}
	return *o.PriceID == *other.PriceID
}

// CartItem is one line in the cart. Key is assigned at insertion and never
// reused, so removal does not depend on line positions.
type CartItem struct {
	Key        string  `json:"key"`
	DownloadID int64   `json:"id"`
	Options    Options `json:"options"`
}

// Cart is the ordered list of download selections held in the session
type Cart struct {
	Items []CartItem `json:"items"`
}

// Add appends a line unless the same download and price tier is already in
// the cart. It returns the line key and whether a new line was added.
func (c *Cart) Add(downloadID int64, opts Options) (string, bool) {
	for _, item := range c.Items {
		if item.DownloadID == downloadID && item.Options.SamePrice(opts) {
			return item.Key, false
		}
	}

	key := uuid.New().String()
	c.Items = append(c.Items, CartItem{
		Key:        key,
		DownloadID: downloadID,
		Options:    opts,
	})
	return key, true
}

// Remove drops the line with the given key
func (c *Cart) Remove(key string) bool {
	for i, item := range c.Items {
		if item.Key == key {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAt drops the line at position. Kept for clients that still post a
// line index instead of a key.
func (c *Cart) RemoveAt(position int) bool {
	if position < 0 || position >= len(c.Items) {
		return false
	}
	c.Items = append(c.Items[:position], c.Items[position+1:]...)
	return true
}

// Contains reports whether any line references downloadID
func (c *Cart) Contains(downloadID int64) bool {
	return c.Position(downloadID) >= 0
}

// Position returns the index of the first line referencing downloadID, or -1
func (c *Cart) Position(downloadID int64) int {
	for i, item := range c.Items {
		if item.DownloadID == downloadID {
			return i
		}
	}
	return -1
}

// Quantity counts the lines referencing downloadID
func (c *Cart) Quantity(downloadID int64) int {
	n := 0
	for _, item := range c.Items {
		if item.DownloadID == downloadID {
			n++
		}
	}
	return n
}

// DownloadIDs lists the download id of every line, in cart order
func (c *Cart) DownloadIDs() []int64 {
	ids := make([]int64, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.DownloadID)
	}
	return ids
}

// Len returns the number of lines
func (c *Cart) Len() int {
	return len(c.Items)
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Empty removes all lines
func (c *Cart) Empty() {
	c.Items = nil
}
