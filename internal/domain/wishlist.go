package domain

import (
	"sort"
	"time"
)

type Wishlist struct {
	Owner     string         `json:"-" bson:"owner"`
	Items     []WishlistItem `json:"items" bson:"items"`
	UpdatedAt time.Time      `json:"-" bson:"updated_at"`
}

type WishlistItem struct {
	ProductID int64     `json:"productId" bson:"product_id"`
	AddedAt   time.Time `json:"addedAt" bson:"added_at"`
}

func (w *Wishlist) Contains(productID int64) bool {
	if w == nil {
		return false
	}
	for _, item := range w.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func (w *Wishlist) Clone() *Wishlist {
	if w == nil {
		return nil
	}
	out := *w
	if w.Items != nil {
		out.Items = make([]WishlistItem, len(w.Items))
		copy(out.Items, w.Items)
	}
	return &out
}

// SortByAddedAt orders items newest first, ties broken by product id.
func (w *Wishlist) SortByAddedAt() {
	sort.SliceStable(w.Items, func(i, j int) bool {
		if w.Items[i].AddedAt.Equal(w.Items[j].AddedAt) {
			return w.Items[i].ProductID < w.Items[j].ProductID
		}
		return w.Items[i].AddedAt.After(w.Items[j].AddedAt)
	})
}
