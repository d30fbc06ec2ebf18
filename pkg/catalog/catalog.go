// Package catalog holds the products recommended for each undertone.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/undertone-analyzer/pkg/types"
)

//go:embed products.yaml
var defaultYAML []byte

// Product is one catalog entry. A product without skin types suits all of them.
type Product struct {
	ID        string               `yaml:"id" json:"id"`
	Name      string               `yaml:"name" json:"name"`
	Tone      types.UndertoneLabel `yaml:"tone" json:"tone"`
	SkinTypes []types.SkinType     `yaml:"skin_types,omitempty" json:"skin_types,omitempty"`
	Image     string               `yaml:"image,omitempty" json:"image,omitempty"`
}

// Suits reports whether the product is meant for skinType
func (p Product) Suits(skinType types.SkinType) bool {
	if len(p.SkinTypes) == 0 {
		return true
	}
	for _, st := range p.SkinTypes {
		if st == skinType {
			return true
		}
	}
	return false
}

// Catalog is an immutable list of products
type Catalog struct {
	products []Product
}

type document struct {
	Products []Product `yaml:"products"`
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic("failed to parse embedded products.yaml: " + err.Error())
	}
	return c
}

// Load reads a catalog from a YAML file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(doc.Products))
	for i, p := range doc.Products {
		if p.ID == "" {
			return nil, fmt.Errorf("product %d: missing id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("product %s: duplicate id", p.ID)
		}
		seen[p.ID] = true

		tone, err := types.ParseUndertone(string(p.Tone))
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		doc.Products[i].Tone = tone
		for j, st := range p.SkinTypes {
			skinType, err := types.ParseSkinType(string(st))
			if err != nil {
				return nil, fmt.Errorf("product %s: %w", p.ID, err)
			}
			doc.Products[i].SkinTypes[j] = skinType
		}
	}

	return &Catalog{products: doc.Products}, nil
}

// Len returns the number of products
func (c *Catalog) Len() int {
	return len(c.products)
}

// Filter returns the products for label, narrowed to skinType when it is
// given. The result is never nil.
func (c *Catalog) Filter(label types.UndertoneLabel, skinType *types.SkinType) []Product {
	matches := []Product{}
	for _, p := range c.products {
		if p.Tone != label {
			continue
		}
		if skinType != nil && !p.Suits(*skinType) {
			continue
		}
		matches = append(matches, p)
	}
	return matches
}
