package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/digest"
)

// GenesisHash is the well-known seal of the genesis block. It is not a
// computed digest and can never collide with one.
const GenesisHash = "genesis_block"

// GenesisPrevHash is the previous-hash sentinel carried by the genesis block.
const GenesisPrevHash = "0"

// DefaultCapacity is the number of attestations a block holds before a new
// block is opened.
const DefaultCapacity = 2

// Product is the manufacturer-supplied metadata of an attestation.
type Product struct {
	Name         string `json:"product_name"`
	Manufacturer string `json:"manufacturer_name"`
}

// Attestation records that the artifact with digest ContentHash corresponds
// to Product.
type Attestation struct {
	Product     Product `json:"product"`
	ContentHash string  `json:"barcode_hash"`
}

// Block is a capacity-bounded group of attestations linked to its
// predecessor by PreviousHash.
type Block struct {
	Index        int           `json:"index"`
	Timestamp    float64       `json:"timestamp"` // unix seconds
	Attestations []Attestation `json:"product_details"`
	PreviousHash string        `json:"previous_hash"`
	Hash         string        `json:"hash"`
}

// Time returns the block creation time.
func (b *Block) Time() time.Time {
	sec := int64(b.Timestamp)
	nsec := int64((b.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// Sealed reports whether the block is closed to further attestations.
// The genesis block is always closed.
func (b *Block) Sealed(capacity int) bool {
	return b.Index == 0 || len(b.Attestations) >= capacity
}

// clone returns a deep copy of b.
func (b *Block) clone() Block {
	cp := *b
	cp.Attestations = make([]Attestation, len(b.Attestations))
	copy(cp.Attestations, b.Attestations)
	return cp
}

func newGenesis(now time.Time) *Block {
	return &Block{
		Index:        0,
		Timestamp:    unixSeconds(now),
		Attestations: []Attestation{},
		PreviousHash: GenesisPrevHash,
		Hash:         GenesisHash, // sentinel, not computed
	}
}

// sealBlock computes the digest over a block's index, timestamp, previous
// hash and attestations. Strings are length-prefixed so that no two distinct
// blocks share an encoding. Must never be called on the genesis block.
func sealBlock(b *Block) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(b.Index))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatFloat(b.Timestamp, 'f', -1, 64))
	sb.WriteByte('|')
	sb.WriteString(b.PreviousHash)
	sb.WriteByte('|')
	for _, a := range b.Attestations {
		writeField(&sb, a.Product.Name)
		writeField(&sb, a.Product.Manufacturer)
		sb.WriteString(a.ContentHash)
		sb.WriteByte(';')
	}
	return digest.Text(sb.String())
}

func writeField(sb *strings.Builder, s string) {
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
	sb.WriteByte('|')
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
