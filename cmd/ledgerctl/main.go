package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/bootstrap"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/config"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/fsutil"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/abishek-bhat/AuthentiChain-Application/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	outputFormat string
	verbose      bool
	serverURL    string

	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "AuthentiChain ledger administration CLI",
	Long: `ledgerctl operates directly on the configured ledger and account stores.

It records and verifies barcode artifacts, inspects and checks the chain,
and manages accounts without going through ledgerd.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(viper.GetViper(), cfgFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/ledgerd.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log store activity to stderr")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledgerd base URL; submit, verify and login go over HTTP when set")
	rootCmd.PersistentFlags().String("driver", "", "Storage driver: file, badger or postgres")
	rootCmd.PersistentFlags().String("ledger-path", "", "Ledger JSON document (file driver)")
	rootCmd.PersistentFlags().String("badger-dir", "", "Ledger database directory (badger driver)")
	rootCmd.PersistentFlags().String("accounts-path", "", "Account directory JSON document (file driver)")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection URL (postgres driver)")

	_ = viper.BindPFlag("storage.driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("storage.ledger_path", rootCmd.PersistentFlags().Lookup("ledger-path"))
	_ = viper.BindPFlag("storage.badger_dir", rootCmd.PersistentFlags().Lookup("badger-dir"))
	_ = viper.BindPFlag("storage.accounts_path", rootCmd.PersistentFlags().Lookup("accounts-path"))
	_ = viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.AddCommand(initCmd, submitCmd, verifyCmd, searchCmd, chainCmd,
		checkCmd, statsCmd, registerCmd, loginCmd, versionCmd)
}

// openApp opens the configured stores. The caller must Close the result.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	logger := zap.NewNop()
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		logger = l
	}
	app, err := bootstrap.Open(ctx, cfg, logger)
	if errors.Is(err, fsutil.ErrLocked) {
		return nil, fmt.Errorf("%w (stop ledgerd or pass --server to go through it)", err)
	}
	return app, err
}

func printJSON(stdout io.Writer, v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func short(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16] + "…"
}

// ── init ─────────────────────────────────────────────────────────────────────

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the genesis block and seed accounts if the stores are empty",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		ov := app.Service.Overview(ctx)
		if outputFormat == "json" {
			return printJSON(stdout, ov)
		}
		fmt.Fprintf(stdout, "Ledger ready: %d block(s), capacity %d, root %s\n", ov.Blocks, ov.Capacity, ov.Root)
		return nil
	},
}

// ── submit ───────────────────────────────────────────────────────────────────

var (
	submitProduct      string
	submitManufacturer string
	submitUsername     string
	submitPassword     string
)

var submitCmd = &cobra.Command{
	Use:   "submit <barcode-file>",
	Short: "Record a barcode artifact for a product (manufacturer accounts only)",
	Long: `Submit hashes the barcode file and appends the attestation to the ledger.

  ledgerctl submit --product "Widget" --manufacturer "Acme" \
      --username manu --password manu123 widget.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		if serverURL != "" {
			return submitRemote(ctx, stdout, args[0])
		}
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		role, ok := app.Service.Login(ctx, submitUsername, submitPassword)
		if !ok {
			return errors.New("invalid credentials")
		}
		if !role.CanSubmit() {
			return fmt.Errorf("account %q has role %s; only manufacturers may submit", submitUsername, role)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open barcode: %w", err)
		}
		defer f.Close()

		out, err := app.Service.SubmitProduct(ctx, submitProduct, submitManufacturer, f)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(stdout, out)
		}
		printRecorded(stdout, out.ContentHash, out.BlockIndex, out.NewBlock)
		return nil
	},
}

func submitRemote(ctx context.Context, stdout io.Writer, path string) error {
	c, err := client.New(serverURL)
	if err != nil {
		return err
	}
	if _, err := c.Login(ctx, submitUsername, submitPassword); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open barcode: %w", err)
	}
	defer f.Close()

	out, err := c.SubmitProduct(ctx, submitProduct, submitManufacturer, filepath.Base(path), f)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(stdout, out)
	}
	printRecorded(stdout, out.BarcodeHash, out.BlockIndex, out.NewBlock)
	return nil
}

func printRecorded(stdout io.Writer, hash string, block int, newBlock bool) {
	where := "existing block"
	if newBlock {
		where = "new block"
	}
	fmt.Fprintf(stdout, "Recorded %s in %s %d\n", hash, where, block)
}

func init() {
	submitCmd.Flags().StringVar(&submitProduct, "product", "", "Product name")
	submitCmd.Flags().StringVar(&submitManufacturer, "manufacturer", "", "Manufacturer name")
	submitCmd.Flags().StringVar(&submitUsername, "username", "", "Manufacturer account username")
	submitCmd.Flags().StringVar(&submitPassword, "password", "", "Manufacturer account password")
	_ = submitCmd.MarkFlagRequired("product")
	_ = submitCmd.MarkFlagRequired("manufacturer")
	_ = submitCmd.MarkFlagRequired("username")
	_ = submitCmd.MarkFlagRequired("password")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <barcode-file>",
	Short: "Check whether a barcode artifact is recorded on the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open barcode: %w", err)
		}
		defer f.Close()

		if serverURL != "" {
			c, err := client.New(serverURL)
			if err != nil {
				return err
			}
			res, err := c.VerifyProduct(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(stdout, res)
			}
			printVerdict(stdout, res.Found, res.BarcodeHash, res.BlockIndex)
			return nil
		}

		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := app.Service.VerifyArtifact(ctx, f)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(stdout, res)
		}
		printVerdict(stdout, res.Found, res.ContentHash, res.BlockIndex)
		return nil
	},
}

func printVerdict(stdout io.Writer, found bool, hash string, block *int) {
	if !found || block == nil {
		fmt.Fprintf(stdout, "NOT FOUND  %s  product may be counterfeit\n", hash)
		return
	}
	fmt.Fprintf(stdout, "AUTHENTIC  %s  block %d\n", hash, *block)
}

// ── search ───────────────────────────────────────────────────────────────────

var searchField string

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "List attestations whose product or manufacturer name matches exactly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		matches, err := app.Service.SearchProducts(ctx, searchField, args[0])
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(stdout, matches)
		}
		if len(matches) == 0 {
			fmt.Fprintln(stdout, "No matching products.")
			return nil
		}
		w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BLOCK\tPRODUCT\tMANUFACTURER\tBARCODE HASH")
		for _, m := range matches {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.BlockIndex, m.Product.Name, m.Product.Manufacturer, short(m.ContentHash))
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchField, "field", "product_name", "Field to match: product_name or manufacturer_name")
}

// ── chain ────────────────────────────────────────────────────────────────────

var chainCmd = &cobra.Command{
	Use:   "chain [index]",
	Short: "Print the chain, or a single block",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		var blocks []ledger.Block
		if len(args) == 1 {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid block index %q", args[0])
			}
			b, err := app.Service.GetBlock(ctx, idx)
			if err != nil {
				return err
			}
			blocks = []ledger.Block{*b}
		} else {
			blocks = app.Service.ListChain(ctx)
		}

		if outputFormat == "json" {
			return printJSON(stdout, blocks)
		}
		w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tCREATED\tPRODUCTS\tPREVIOUS\tHASH")
		for _, b := range blocks {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
				b.Index, b.Time().Format(time.RFC3339), len(b.Attestations), short(b.PreviousHash), short(b.Hash))
		}
		return w.Flush()
	},
}

// ── check ────────────────────────────────────────────────────────────────────

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify every block's link and seal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Service.VerifyChain(ctx); err != nil {
			if outputFormat == "json" {
				_ = printJSON(stdout, map[string]any{"valid": false, "error": err.Error()})
			}
			return err
		}
		ov := app.Service.Overview(ctx)
		if outputFormat == "json" {
			return printJSON(stdout, map[string]any{"valid": true, "blocks": ov.Blocks, "root": ov.Root})
		}
		fmt.Fprintf(stdout, "Chain valid: %d block(s), root %s\n", ov.Blocks, ov.Root)
		return nil
	},
}

// ── stats ────────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise recorded products",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		st := app.Service.Stats(ctx)
		if outputFormat == "json" {
			return printJSON(stdout, st)
		}
		fmt.Fprintf(stdout, "Blocks:            %d\n", st.Blocks)
		fmt.Fprintf(stdout, "Products:          %d\n", st.Attestations)
		fmt.Fprintf(stdout, "Unique barcodes:   %d\n", st.UniqueBarcodes)
		fmt.Fprintf(stdout, "Top manufacturer:  %s\n", st.TopManufacturer)
		if len(st.Manufacturers) == 0 {
			return nil
		}
		fmt.Fprintln(stdout)
		w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MANUFACTURER\tPRODUCTS")
		for _, m := range st.Manufacturers {
			fmt.Fprintf(w, "%s\t%d\n", m.Manufacturer, m.Count)
		}
		return w.Flush()
	},
}

// ── register / login ─────────────────────────────────────────────────────────

var (
	accountPassword string
	accountRole     string
)

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		role, err := accounts.ParseRole(accountRole)
		if err != nil {
			return err
		}
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Service.Register(ctx, args[0], accountPassword, role); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Registered %s as %s\n", args[0], role)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Check an account's credentials and print its role",
	Long: `Login checks the credentials against the local account directory, or
with --server asks ledgerd for a session token and prints its role and
expiry.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stdout := cmd.OutOrStdout()
		if serverURL != "" {
			return loginRemote(ctx, stdout, args[0], accountPassword)
		}
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		role, ok := app.Service.Login(ctx, args[0], accountPassword)
		if !ok {
			return errors.New("invalid credentials")
		}
		if outputFormat == "json" {
			return printJSON(stdout, map[string]string{"username": args[0], "role": string(role)})
		}
		fmt.Fprintf(stdout, "Authenticated %s (%s)\n", args[0], role)
		return nil
	},
}

func loginRemote(ctx context.Context, stdout io.Writer, username, password string) error {
	c, err := client.New(serverURL)
	if err != nil {
		return err
	}
	res, err := c.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(stdout, map[string]any{
			"username":   username,
			"role":       res.Role,
			"token":      res.Token,
			"expires_in": res.ExpiresIn,
		})
	}
	expires := time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	fmt.Fprintf(stdout, "Authenticated %s (%s)\n", username, res.Role)
	fmt.Fprintf(stdout, "Token expires %s\n", expires.Format(time.RFC3339))
	fmt.Fprintln(stdout, res.Token)
	return nil
}

func init() {
	registerCmd.Flags().StringVar(&accountPassword, "password", "", "Account password")
	registerCmd.Flags().StringVar(&accountRole, "role", "user", "Account role: manufacturer or user")
	_ = registerCmd.MarkFlagRequired("password")
	loginCmd.Flags().StringVar(&accountPassword, "password", "", "Account password")
	_ = loginCmd.MarkFlagRequired("password")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "ledgerctl", version)
	},
}
