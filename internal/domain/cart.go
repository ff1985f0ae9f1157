package domain

import "time"

// MaxItemQuantity is the per-item cap enforced by the backend on add, update and merge.
const MaxItemQuantity = 99

type ProductSummary struct {
	ID       int64   `json:"id" bson:"id"`
	Name     string  `json:"name" bson:"name"`
	Price    float64 `json:"price" bson:"price"`
	ImageURL string  `json:"imageUrl,omitempty" bson:"image_url,omitempty"`
}

// Cart is the wire and storage shape of a cart. Owner and the timestamps are
// backend bookkeeping and never leave the server.
type Cart struct {
	Owner     string     `json:"-" bson:"owner"`
	Items     []CartItem `json:"items" bson:"items"`
	Total     float64    `json:"total" bson:"-"`
	CreatedAt time.Time  `json:"-" bson:"created_at"`
	UpdatedAt time.Time  `json:"-" bson:"updated_at"`
}

type CartItem struct {
	ProductID       int64          `json:"productId" bson:"product_id"`
	Quantity        int            `json:"quantity" bson:"quantity"`
	ProductSnapshot ProductSummary `json:"productSnapshot" bson:"product_snapshot"`
	AddedAt         time.Time      `json:"-" bson:"added_at"`
}

// Find returns the item for productID and whether it is present.
func (c *Cart) Find(productID int64) (CartItem, bool) {
	if c == nil {
		return CartItem{}, false
	}
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// Clone returns a deep copy so callers can never write through to a stored snapshot.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Items != nil {
		out.Items = make([]CartItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	return &out
}

// ComputeTotal sums price × quantity over the item snapshots.
func (c *Cart) ComputeTotal() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.ProductSnapshot.Price * float64(item.Quantity)
	}
	return total
}
