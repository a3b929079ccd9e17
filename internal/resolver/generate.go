package resolver

import (
	"hash/fnv"
	"strconv"

	"github.com/bavix/scanbridge/internal/catalog"
)

//nolint:gochecknoglobals // fixed name table
var generatedNames = []string{
	"Fresh Milk 1L", "White Sugar 1kg", "Tea Leaves 250g", "Bread Loaf",
	"Tomatoes 1kg", "Onions 500g", "Irish Potatoes 2kg", "Chicken 1kg",
	"Fish Fillet 500g", "Bananas 1 bunch", "Oranges 1kg", "Mineral Water 500ml",
}

const (
	generatedMinPrice  = 1000
	generatedPriceStep = 500
	generatedSteps     = 41 // 1000..21000
	generatedMaxStock  = 100
	generatedAisles    = 5
)

// Generate builds a plausible stub for an unknown code. The same code always
// yields the same product.
func Generate(code string) catalog.Product {
	h := fnv.New64a()
	_, _ = h.Write([]byte(code))
	sum := h.Sum64()

	name := generatedNames[sum%uint64(len(generatedNames))]
	sum /= uint64(len(generatedNames))

	price := generatedMinPrice + int64(sum%generatedSteps)*generatedPriceStep
	sum /= generatedSteps

	stock := int(sum%generatedMaxStock) + 1
	sum /= generatedMaxStock

	aisle := int(sum%generatedAisles) + 1

	return catalog.Product{
		Code:     code,
		Name:     name,
		Price:    price,
		Currency: catalog.DefaultCurrency,
		Category: "General",
		Supplier: "Local Supplier",
		Stock:    stock,
		Location: "Aisle " + strconv.Itoa(aisle),
	}
}
