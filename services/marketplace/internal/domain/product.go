package domain

import "time"

// Product category constants.
const (
	CategoryWorkshopTicket = "WORKSHOP_TICKET"
	CategoryEventTicket    = "EVENT_TICKET"
	CategoryBook           = "BOOK"
	CategoryMerchandise    = "MERCHANDISE"
	CategoryService        = "SERVICE"
	CategoryOther          = "OTHER"
)

// Product is a catalog entry with a live stock counter. Price is in cents.
// Deactivated products stay in the table so order items keep their reference.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category"`
	SellerID    string    `json:"seller_id"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidCategories returns all valid product categories.
func ValidCategories() []string {
	return []string{
		CategoryWorkshopTicket,
		CategoryEventTicket,
		CategoryBook,
		CategoryMerchandise,
		CategoryService,
		CategoryOther,
	}
}

// IsValidCategory checks if a category string is valid.
func IsValidCategory(category string) bool {
	for _, c := range ValidCategories() {
		if c == category {
			return true
		}
	}
	return false
}

// HasStock reports whether the product can satisfy the requested quantity.
func (p *Product) HasStock(quantity int) bool {
	return p.Stock >= quantity
}
