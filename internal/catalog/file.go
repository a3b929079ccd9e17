package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	yaml "github.com/goccy/go-yaml"
)

var (
	errCatalogPathEmpty = errors.New("catalog path is empty")
	errProductCodeEmpty = errors.New("product code cannot be empty")
	errProductNameEmpty = errors.New("product name cannot be empty")
	errDuplicateProduct = errors.New("duplicate product code")
	errNegativePrice    = errors.New("product price must be non-negative")
)

type fileFormat struct {
	Products []Product `yaml:"products"`
}

// LoadFile reads a YAML product list:
//
//	products:
//	  - code: "4006381333931"
//	    name: Stabilo Boss
//	    price: 3500
func LoadFile(path string) ([]Product, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errCatalogPathEmpty
	}

	b, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Products))

	for i := range f.Products {
		p := &f.Products[i]
		p.Code = strings.TrimSpace(p.Code)

		switch {
		case p.Code == "":
			return nil, fmt.Errorf("product %d: %w", i, errProductCodeEmpty)
		case strings.TrimSpace(p.Name) == "":
			return nil, fmt.Errorf("product %s: %w", p.Code, errProductNameEmpty)
		case p.Price < 0:
			return nil, fmt.Errorf("product %s: %w", p.Code, errNegativePrice)
		}

		if _, dup := seen[p.Code]; dup {
			return nil, fmt.Errorf("product %s: %w", p.Code, errDuplicateProduct)
		}

		seen[p.Code] = struct{}{}
	}

	return f.Products, nil
}

// Load builds the table from the seed plus the products of path, which may be empty.
func Load(path string) ([]Product, error) {
	products := Seed()
	if path == "" {
		return products, nil
	}

	extra, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	return append(products, extra...), nil
}
