package model

import "strings"

// OperationKind is the commercial operation of a listing.
type OperationKind string

const (
	OperationSale OperationKind = "sale"
	OperationRent OperationKind = "rent"
	// OperationBoth only appears in filters and matches either kind.
	OperationBoth OperationKind = "both"
)

// ParseOperationKind normalizes free text from the model. Unknown values
// yield an empty kind, which filters nothing.
func ParseOperationKind(s string) OperationKind {
	switch OperationKind(strings.ToLower(strings.TrimSpace(s))) {
	case OperationSale:
		return OperationSale
	case OperationRent:
		return OperationRent
	case OperationBoth:
		return OperationBoth
	default:
		return ""
	}
}

// Property is the canonical listing. Numeric fields are always populated.
type Property struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	Price     float64       `json:"price"`
	Currency  string        `json:"currency"`
	Location  string        `json:"location"`
	Bedrooms  int           `json:"bedrooms"`
	Bathrooms int           `json:"bathrooms"`
	ImageURL  string        `json:"image_url"`
	Link      string        `json:"link"`
	Kind      OperationKind `json:"type"`
}

// PropertySearchFilter narrows a search. Zero values mean "no constraint".
type PropertySearchFilter struct {
	Location      string        `json:"location,omitempty"`
	MaxPrice      float64       `json:"max_price,omitempty"`
	MinBedrooms   int           `json:"min_bedrooms,omitempty"`
	OperationKind OperationKind `json:"operation_type,omitempty"`
}

// Matches applies the filter to a single property.
func (f PropertySearchFilter) Matches(p Property) bool {
	if f.Location != "" && !strings.Contains(strings.ToLower(p.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.MaxPrice > 0 && p.Price > f.MaxPrice {
		return false
	}
	if f.MinBedrooms > 0 && p.Bedrooms < f.MinBedrooms {
		return false
	}
	if f.OperationKind != "" && f.OperationKind != OperationBoth && f.OperationKind != p.Kind {
		return false
	}
	return true
}
