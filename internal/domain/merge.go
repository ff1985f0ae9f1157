package domain

// MergeCarts folds the items of from into a copy of into. Lines for the same
// product are combined by summing quantities, capped at MaxItemQuantity, and
// take from's product snapshot when it has one; lines only in from are appended
// in their original order.
func MergeCarts(into, from *Cart) *Cart {
	out := into.Clone()
	if out == nil {
		out = &Cart{}
	}
	if out.Items == nil {
		out.Items = []CartItem{}
	}
	if from == nil {
		return out
	}

	index := make(map[int64]int, len(out.Items))
	for i, item := range out.Items {
		index[item.ProductID] = i
	}
	for _, item := range from.Items {
		if i, ok := index[item.ProductID]; ok {
			out.Items[i].Quantity = min(out.Items[i].Quantity+item.Quantity, MaxItemQuantity)
			if item.ProductSnapshot != (ProductSummary{}) {
				out.Items[i].ProductSnapshot = item.ProductSnapshot
			}
			continue
		}
		item.Quantity = min(item.Quantity, MaxItemQuantity)
		index[item.ProductID] = len(out.Items)
		out.Items = append(out.Items, item)
	}
	return out
}

// MergeWishlists returns the set union of both wishlists. A product in both
// keeps the AddedAt recorded in into.
func MergeWishlists(into, from *Wishlist) *Wishlist {
	out := into.Clone()
	if out == nil {
		out = &Wishlist{}
	}
	if out.Items == nil {
		out.Items = []WishlistItem{}
	}
	if from != nil {
		for _, item := range from.Items {
			if !out.Contains(item.ProductID) {
				out.Items = append(out.Items, item)
			}
		}
	}
	out.SortByAddedAt()
	return out
}
