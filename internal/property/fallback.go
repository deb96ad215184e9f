package property

import "github.com/capitalize-ai/realty-agent/internal/model"

// maxFallbackResults caps results drawn from the fallback dataset.
const maxFallbackResults = 5

var fallbackDataset = []model.Property{
	{
		ID:        101,
		Title:     "Modern Loft in Palermo Soho",
		Price:     950,
		Currency:  "USD",
		Location:  "Palermo",
		Bedrooms:  1,
		Bathrooms: 1,
		ImageURL:  "https://picsum.photos/400/300?random=1",
		Link:      "https://tokkobroker.com/p/101",
		Kind:      model.OperationRent,
	},
	{
		ID:        102,
		Title:     "Classic Family Home Recoleta",
		Price:     450000,
		Currency:  "USD",
		Location:  "Recoleta",
		Bedrooms:  3,
		Bathrooms: 2,
		ImageURL:  "https://picsum.photos/400/300?random=2",
		Link:      "https://tokkobroker.com/p/102",
		Kind:      model.OperationSale,
	},
	{
		ID:        103,
		Title:     "Sunny Apartment Belgrano",
		Price:     900,
		Currency:  "USD",
		Location:  "Belgrano",
		Bedrooms:  2,
		Bathrooms: 1,
		ImageURL:  "https://picsum.photos/400/300?random=3",
		Link:      "https://tokkobroker.com/p/103",
		Kind:      model.OperationRent,
	},
	{
		ID:        104,
		Title:     "Luxury Penthouse Puerto Madero",
		Price:     850000,
		Currency:  "USD",
		Location:  "Puerto Madero",
		Bedrooms:  4,
		Bathrooms: 4,
		ImageURL:  "https://picsum.photos/400/300?random=4",
		Link:      "https://tokkobroker.com/p/104",
		Kind:      model.OperationSale,
	},
	{
		ID:        105,
		Title:     "Cozy Studio San Telmo",
		Price:     600,
		Currency:  "USD",
		Location:  "San Telmo",
		Bedrooms:  0,
		Bathrooms: 1,
		ImageURL:  "https://picsum.photos/400/300?random=5",
		Link:      "https://tokkobroker.com/p/105",
		Kind:      model.OperationRent,
	},
}

// FallbackDataset returns a copy of the local development listings.
func FallbackDataset() []model.Property {
	out := make([]model.Property, len(fallbackDataset))
	copy(out, fallbackDataset)
	return out
}

func searchFallback(filter model.PropertySearchFilter) []model.Property {
	out := make([]model.Property, 0, maxFallbackResults)
	for _, p := range fallbackDataset {
		if !filter.Matches(p) {
			continue
		}
		out = append(out, p)
		if len(out) == maxFallbackResults {
			break
		}
	}
	return out
}
