package ledger

import (
	"context"
	"sort"
)

// ManufacturerCount is the number of attestations submitted under one
// manufacturer name.
type ManufacturerCount struct {
	Manufacturer string `json:"manufacturer_name"`
	Count        int    `json:"count"`
}

// BlockCount is the attestation count of a single block.
type BlockCount struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Count     int     `json:"count"`
}

// Stats summarises the chain for analytics views.
type Stats struct {
	Blocks          int                 `json:"blocks"`
	Attestations    int                 `json:"attestations"`
	UniqueBarcodes  int                 `json:"unique_barcodes"`
	TopManufacturer string              `json:"top_manufacturer"`
	Manufacturers   []ManufacturerCount `json:"manufacturers"`
	PerBlock        []BlockCount        `json:"per_block"`
}

// Stats computes chain analytics. Manufacturers are ordered by count
// descending, then name; TopManufacturer is the first of them.
func (l *Ledger) Stats(_ context.Context) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Stats{
		Blocks:        len(l.chain),
		Manufacturers: []ManufacturerCount{},
		PerBlock:      make([]BlockCount, 0, len(l.chain)),
	}

	counts := make(map[string]int)
	barcodes := make(map[string]struct{})
	for _, b := range l.chain {
		st.PerBlock = append(st.PerBlock, BlockCount{
			Index:     b.Index,
			Timestamp: b.Timestamp,
			Count:     len(b.Attestations),
		})
		for _, a := range b.Attestations {
			st.Attestations++
			counts[a.Product.Manufacturer]++
			barcodes[a.ContentHash] = struct{}{}
		}
	}
	st.UniqueBarcodes = len(barcodes)

	for name, n := range counts {
		st.Manufacturers = append(st.Manufacturers, ManufacturerCount{Manufacturer: name, Count: n})
	}
	sort.Slice(st.Manufacturers, func(i, j int) bool {
		a, b := st.Manufacturers[i], st.Manufacturers[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Manufacturer < b.Manufacturer
	})
	if len(st.Manufacturers) > 0 {
		st.TopManufacturer = st.Manufacturers[0].Manufacturer
	}
	return st
}
