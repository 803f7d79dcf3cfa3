package domain

import (
	"encoding/json"
	"sort"
	"time"
)

type CartStatus string

const (
	CartStatusActive    CartStatus = "ACTIVE"
	CartStatusAbandoned CartStatus = "ABANDONED"
	CartStatusConverted CartStatus = "CONVERTED"
)

type Cart struct {
	ID        int64
	UserID    int64
	Status    CartStatus
	Version   int64
	ExpiresAt *time.Time
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartItem struct {
	ID               int64
	CartID           int64
	ArticleID        int64
	VariantID        int64
	Quantity         int
	PriceAtTime      int64 // snapshot in minor currency units, charged at checkout
	OriginalPrice    int64 // current price at last refresh, for drift display
	CustomData       map[string]any
	GeneratedImageID *int64
	PromptID         *int64
	Position         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (i *CartItem) TotalPrice() int64 {
	return i.PriceAtTime * int64(i.Quantity)
}

func (i *CartItem) HasPriceChanged() bool {
	return i.PriceAtTime != i.OriginalPrice
}

// CustomDataKey returns a canonical JSON encoding of the item's custom data,
// used to decide whether two cart lines are the same configuration.
func (i *CartItem) CustomDataKey() string {
	return canonicalJSON(i.CustomData)
}

func (c *Cart) TotalPrice() int64 {
	var total int64
	for i := range c.Items {
		total += c.Items[i].TotalPrice()
	}
	return total
}

func (c *Cart) TotalItemCount() int {
	var count int
	for i := range c.Items {
		count += c.Items[i].Quantity
	}
	return count
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) Item(itemID int64) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// FindMatching returns the existing line with the same article, variant and
// custom data, or nil. Matching lines are merged instead of appended.
func (c *Cart) FindMatching(item *CartItem) *CartItem {
	key := item.CustomDataKey()
	for i := range c.Items {
		if c.Items[i].ArticleID == item.ArticleID &&
			c.Items[i].VariantID == item.VariantID &&
			c.Items[i].CustomDataKey() == key {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *Cart) NextPosition() int {
	return len(c.Items)
}

func canonicalJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte("{")
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		out = append(out, kb...)
		out = append(out, ':')
		out = append(out, vb...)
	}
	out = append(out, '}')
	return string(out)
}
