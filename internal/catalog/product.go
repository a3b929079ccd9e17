// Package catalog holds the local product table.
package catalog

// Product is one catalogue entry.
type Product struct {
	Code     string `json:"code"                yaml:"code"`
	Name     string `json:"name"                yaml:"name"`
	Price    int64  `json:"price"               yaml:"price"`
	Currency string `json:"currency"            yaml:"currency"`
	Category string `json:"category,omitempty"  yaml:"category"`
	Supplier string `json:"supplier,omitempty"  yaml:"supplier"`
	Stock    int    `json:"stock"               yaml:"stock"`
	Location string `json:"location,omitempty"  yaml:"location"`
}

// DefaultCurrency is applied to entries that name none.
const DefaultCurrency = "UGX"

// Seed returns the products every catalogue starts with.
func Seed() []Product {
	return []Product{
		{
			Code: "6291018051234", Name: "Blue Band Margarine 500g", Price: 8500, Currency: DefaultCurrency,
			Category: "Dairy & Spreads", Supplier: "Unilever Uganda", Stock: 45, Location: "Aisle 3, Shelf B",
		},
		{
			Code: "6291018087654", Name: "Cowboy Rice 5kg", Price: 18000, Currency: DefaultCurrency,
			Category: "Grains & Cereals", Supplier: "Rice Masters Ltd", Stock: 23, Location: "Aisle 1, Shelf A",
		},
		{
			Code: "6291018012345", Name: "Mukwano Cooking Oil 2L", Price: 12000, Currency: DefaultCurrency,
			Category: "Cooking Oils", Supplier: "Mukwano Group", Stock: 67, Location: "Aisle 2, Shelf C",
		},
		{
			Code: "1234567890123", Name: "Demo Product A", Price: 5000, Currency: DefaultCurrency,
			Category: "Demo Category", Supplier: "FareDeal Demo", Stock: 100, Location: "Demo Aisle",
		},
		// The same demo product under the check-digit-correct code the demo scanner reads.
		{
			Code: "1234567890128", Name: "Demo Product A", Price: 5000, Currency: DefaultCurrency,
			Category: "Demo Category", Supplier: "FareDeal Demo", Stock: 100, Location: "Demo Aisle",
		},
	}
}
