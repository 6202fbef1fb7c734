// Package client is the Go SDK for the ledgerd HTTP API.
//
// # Verifying a product
//
// Anyone can check whether a barcode artifact was recorded by a
// manufacturer:
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	f, _ := os.Open("widget.png")
//	defer f.Close()
//
//	res, err := c.VerifyProduct(ctx, "widget.png", f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Found, res.BarcodeHash)
//
// # Submitting a product
//
// Submissions need a session token for a manufacturer account. Login stores
// the token on the client for subsequent calls:
//
//	if _, err := c.Login(ctx, "manu", "manu123"); err != nil {
//	    log.Fatal(err)
//	}
//	out, err := c.SubmitProduct(ctx, "Widget", "Acme", "widget.png", f)
//	switch {
//	case errors.Is(err, client.ErrConflict):
//	    // barcode already recorded
//	case err != nil:
//	    log.Fatal(err)
//	}
//	fmt.Println("recorded in block", out.BlockIndex)
//
// # Caching
//
// The ledger is append-only, so a positive verification never changes.
// WithCacheTTL keeps positive results in memory; negative results are
// always re-checked.
package client
