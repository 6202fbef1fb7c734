package ledger

import "fmt"

// checkBase rejects a save unless chain is the stored chain extended by at
// most one append: the stored tail is either unchanged (a new block follows
// it) or has grown by attestations appended after the stored ones. Blocks
// below the stored tail are covered by the tail's PreviousHash. storedTail is
// ignored when storedLen is zero.
func checkBase(chain []Block, storedLen int, storedTail *Block) error {
	if storedLen == 0 {
		return nil
	}
	if len(chain) != storedLen && len(chain) != storedLen+1 {
		return fmt.Errorf("%w: store holds %d blocks, writer has %d",
			ErrStaleChain, storedLen, len(chain))
	}
	t := storedLen - 1
	if storedTail == nil || storedTail.Index != t {
		return fmt.Errorf("%w: stored tail is not block %d", ErrMalformedChain, t)
	}

	mine := chain[t]
	stale := mine.Timestamp != storedTail.Timestamp ||
		mine.PreviousHash != storedTail.PreviousHash ||
		!hasPrefix(mine.Attestations, storedTail.Attestations) ||
		(len(chain) == storedLen+1 && mine.Hash != storedTail.Hash)
	if stale {
		return fmt.Errorf("%w: block %d differs from the stored copy", ErrStaleChain, t)
	}
	return nil
}

func hasPrefix(list, prefix []Attestation) bool {
	if len(prefix) > len(list) {
		return false
	}
	for i := range prefix {
		if list[i] != prefix[i] {
			return false
		}
	}
	return true
}
