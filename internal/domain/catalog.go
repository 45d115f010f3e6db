package domain

// ProductRecord is one ranked catalog row returned by the lookup service.
type ProductRecord struct {
	SKU             string `json:"sku"`
	Name            string `json:"name"`
	BuyerCategory   string `json:"buyer_category"`
	ProductCategory string `json:"product_category"`
}

// SKURef is the bounded per-group sample carried in the category table.
type SKURef struct {
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

// CategoryAggregate groups the records sharing one (buyer, product) category
// pair. Samples holds at most two records in first-encountered order while
// Count reflects the true group total.
type CategoryAggregate struct {
	BuyerCategory   string   `json:"buyer_category"`
	ProductCategory string   `json:"product_category"`
	Samples         []SKURef `json:"samples"`
	Count           int      `json:"count"`
}

// SearchResult is the grouped outcome of one catalog lookup, cached on the
// session and delivered to the client at most once as a table.
type SearchResult struct {
	Query                   string              `json:"query"`
	TotalResults            int                 `json:"total_results"`
	UniqueBuyerCategories   []string            `json:"unique_buyer_categories"`
	UniqueProductCategories []string            `json:"unique_product_categories"`
	Aggregates              []CategoryAggregate `json:"rows"`
}

// Clone returns an independent copy of the search result.
func (r SearchResult) Clone() SearchResult {
	out := r
	out.UniqueBuyerCategories = append([]string(nil), r.UniqueBuyerCategories...)
	out.UniqueProductCategories = append([]string(nil), r.UniqueProductCategories...)
	out.Aggregates = make([]CategoryAggregate, len(r.Aggregates))
	for i, agg := range r.Aggregates {
		agg.Samples = append([]SKURef(nil), agg.Samples...)
		out.Aggregates[i] = agg
	}
	return out
}
