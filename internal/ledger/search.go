package ledger

import (
	"context"
	"fmt"
	"strings"
)

// SearchField selects the attestation field matched by Search.
type SearchField string

const (
	FieldProductName      SearchField = "product_name"
	FieldManufacturerName SearchField = "manufacturer_name"
)

// ParseSearchField accepts the canonical field names plus the short forms
// "product" and "manufacturer".
func ParseSearchField(s string) (SearchField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "product_name", "product":
		return FieldProductName, nil
	case "manufacturer_name", "manufacturer":
		return FieldManufacturerName, nil
	default:
		return "", fmt.Errorf("%w: unknown search field %q", ErrInvalidInput, s)
	}
}

// Match is a single search hit.
type Match struct {
	Product     Product `json:"product"`
	ContentHash string  `json:"barcode_hash"`
	BlockIndex  int     `json:"block_index"`
}

// Search returns every attestation whose field equals term exactly, in chain
// order. It returns an empty slice when nothing matches.
func (l *Ledger) Search(_ context.Context, field SearchField, term string) ([]Match, error) {
	var pick func(Product) string
	switch field {
	case FieldProductName:
		pick = func(p Product) string { return p.Name }
	case FieldManufacturerName:
		pick = func(p Product) string { return p.Manufacturer }
	default:
		return nil, fmt.Errorf("%w: unknown search field %q", ErrInvalidInput, field)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	matches := []Match{}
	for _, b := range l.chain {
		for _, a := range b.Attestations {
			if pick(a.Product) == term {
				matches = append(matches, Match{
					Product:     a.Product,
					ContentHash: a.ContentHash,
					BlockIndex:  b.Index,
				})
			}
		}
	}
	return matches, nil
}
