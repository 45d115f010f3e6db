package catalog

import "github.com/whizzbang/audience-builder/internal/domain"

// samplesPerGroup caps the records retained per category pair; counts are
// not bounded by it.
const samplesPerGroup = 2

type pairKey struct {
	buyer   string
	product string
}

// Aggregate groups ranked lookup records into bounded category summaries.
//
// Records carrying the "not in use" sentinel in either category are dropped
// even though the lookup already excludes them; the count and uniqueness
// invariants must hold regardless of collaborator behavior. Grouping is an
// exact, case-sensitive match on the (buyer, product) pair and input order
// is never changed: groups appear in first-encounter order and each group's
// samples are the first two records seen for its pair.
func Aggregate(query string, records []domain.ProductRecord) domain.SearchResult {
	result := domain.SearchResult{Query: query}

	index := make(map[pairKey]int)
	seenBuyer := make(map[string]bool)
	seenProduct := make(map[string]bool)

	for _, rec := range records {
		if rec.BuyerCategory == SentinelNotInUse || rec.ProductCategory == SentinelNotInUse {
			continue
		}
		result.TotalResults++

		if !seenBuyer[rec.BuyerCategory] {
			seenBuyer[rec.BuyerCategory] = true
			result.UniqueBuyerCategories = append(result.UniqueBuyerCategories, rec.BuyerCategory)
		}
		if !seenProduct[rec.ProductCategory] {
			seenProduct[rec.ProductCategory] = true
			result.UniqueProductCategories = append(result.UniqueProductCategories, rec.ProductCategory)
		}

		key := pairKey{buyer: rec.BuyerCategory, product: rec.ProductCategory}
		i, ok := index[key]
		if !ok {
			i = len(result.Aggregates)
			index[key] = i
			result.Aggregates = append(result.Aggregates, domain.CategoryAggregate{
				BuyerCategory:   rec.BuyerCategory,
				ProductCategory: rec.ProductCategory,
			})
		}

		agg := &result.Aggregates[i]
		if len(agg.Samples) < samplesPerGroup {
			agg.Samples = append(agg.Samples, domain.SKURef{SKU: rec.SKU, Name: rec.Name})
		}
		agg.Count++
	}

	return result
}
