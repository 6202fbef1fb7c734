package ledger_test

import (
	"testing"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/stretchr/testify/require"
)

func TestSearch_exactMatchInChainOrder(t *testing.T) {
	l, _ := openMemory(t)
	for _, a := range []ledger.Attestation{
		att("Widget", "Acme", "h1"),
		att("Gadget", "Acme", "h2"),
		att("Widget Pro", "Globex", "h3"),
		att("Sprocket", "Acme", "h4"),
	} {
		_, err := l.Append(ctx, a)
		require.NoError(t, err)
	}

	byMaker, err := l.Search(ctx, ledger.FieldManufacturerName, "Acme")
	require.NoError(t, err)
	require.Len(t, byMaker, 3)
	require.Equal(t, "Widget", byMaker[0].Product.Name)
	require.Equal(t, "Gadget", byMaker[1].Product.Name)
	require.Equal(t, "Sprocket", byMaker[2].Product.Name)
	require.Equal(t, 1, byMaker[0].BlockIndex)
	require.Equal(t, 2, byMaker[2].BlockIndex)

	byName, err := l.Search(ctx, ledger.FieldProductName, "Widget")
	require.NoError(t, err)
	require.Len(t, byName, 1, "search is exact, not substring")
	require.Equal(t, att("Widget", "Acme", "h1").ContentHash, byName[0].ContentHash)

	again, err := l.Search(ctx, ledger.FieldProductName, "Widget")
	require.NoError(t, err)
	require.Equal(t, byName, again)
}

func TestSearch_noMatchIsEmpty(t *testing.T) {
	l, _ := openMemory(t)
	got, err := l.Search(ctx, ledger.FieldProductName, "missing")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestSearch_unknownField(t *testing.T) {
	l, _ := openMemory(t)
	_, err := l.Search(ctx, ledger.SearchField("barcode"), "x")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestParseSearchField(t *testing.T) {
	for in, want := range map[string]ledger.SearchField{
		"product_name":      ledger.FieldProductName,
		"Product":           ledger.FieldProductName,
		"manufacturer_name": ledger.FieldManufacturerName,
		" manufacturer ":    ledger.FieldManufacturerName,
	} {
		got, err := ledger.ParseSearchField(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ledger.ParseSearchField("hash")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}
