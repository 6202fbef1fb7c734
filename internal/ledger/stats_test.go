package ledger_test

import (
	"testing"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/stretchr/testify/require"
)

func TestStats_genesisOnly(t *testing.T) {
	l, _ := openMemory(t)
	st := l.Stats(ctx)
	require.Equal(t, 1, st.Blocks)
	require.Zero(t, st.Attestations)
	require.Zero(t, st.UniqueBarcodes)
	require.Empty(t, st.TopManufacturer)
	require.Empty(t, st.Manufacturers)
	require.Len(t, st.PerBlock, 1)
}

func TestStats_counts(t *testing.T) {
	l, _ := openMemory(t)
	for _, a := range []ledger.Attestation{
		att("A", "Globex", "1"),
		att("B", "Acme", "2"),
		att("C", "Acme", "3"),
		att("D", "Initech", "4"),
		att("E", "Globex", "5"),
	} {
		_, err := l.Append(ctx, a)
		require.NoError(t, err)
	}

	st := l.Stats(ctx)
	require.Equal(t, 4, st.Blocks)
	require.Equal(t, 5, st.Attestations)
	require.Equal(t, 5, st.UniqueBarcodes)
	// Acme and Globex tie at 2; ties break alphabetically.
	require.Equal(t, "Acme", st.TopManufacturer)
	require.Equal(t, []ledger.ManufacturerCount{
		{Manufacturer: "Acme", Count: 2},
		{Manufacturer: "Globex", Count: 2},
		{Manufacturer: "Initech", Count: 1},
	}, st.Manufacturers)

	counts := make([]int, len(st.PerBlock))
	for i, pb := range st.PerBlock {
		require.Equal(t, i, pb.Index)
		counts[i] = pb.Count
	}
	require.Equal(t, []int{0, 2, 2, 1}, counts)
}
