package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/billsync/internal/config"
	"github.com/roach88/billsync/internal/ir"
	"github.com/roach88/billsync/internal/store"
)

// CacheOptions holds flags shared by the cache inspection commands.
type CacheOptions struct {
	*RootOptions
	Database string
	Catalog  string
}

func (o *CacheOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to the purchase cache database (required)")
	cmd.Flags().StringVar(&o.Catalog, "catalog", "", "catalog file naming the hidden product (default: built-in catalog)")
	_ = cmd.MarkFlagRequired("db")
}

// openCache opens an existing cache database. A missing file is a command
// error rather than a fresh empty cache.
func (o *CacheOptions) openCache(out *OutputFormatter) (*store.Store, error) {
	if _, err := os.Stat(o.Database); errors.Is(err, os.ErrNotExist) {
		return nil, out.Failure(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("database not found: %s", o.Database), nil, nil)
	}

	cfg := config.Default()
	if o.Catalog != "" {
		loaded, err := config.Load(o.Catalog)
		if err != nil {
			return nil, out.Failure(ExitCommandError, ErrCodeCatalog,
				fmt.Sprintf("load catalog: %v", err), nil, nil)
		}
		cfg = loaded
	}

	slog.Debug("opening cache", "path", o.Database, "hidden", cfg.Hidden)
	st, err := store.Open(o.Database, store.WithHiddenProduct(cfg.Hidden), store.WithLogger(slog.Default()))
	if err != nil {
		return nil, out.Failure(ExitCommandError, ErrCodeCache,
			fmt.Sprintf("open cache: %v", err), nil, nil)
	}
	return st, nil
}

func closeCache(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing cache", "error", err)
	}
}

// NewProductsCommand creates the products command.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List cached products with their purchases",
		Long: `Print the presentation view of the purchase cache: every cached
product except the hidden one, each with its recorded purchases.

Example:
  billsync products --db ./billing.db
  billsync products --db ./billing.db --catalog ./catalog.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProducts(opts, cmd)
		},
	}
	opts.bind(cmd)

	return cmd
}

func runProducts(opts *CacheOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	st, err := opts.openCache(out)
	if err != nil {
		return err
	}
	defer closeCache(st)

	view, err := st.ProductsWithPurchases(commandContext(cmd))
	if err != nil {
		return out.Failure(ExitCommandError, ErrCodeCache, err.Error(), nil, nil)
	}
	return out.Success(view, formatProducts(view))
}

func formatProducts(view []ir.ProductWithPurchases) string {
	if len(view) == 0 {
		return "No products cached."
	}

	var b strings.Builder
	for _, p := range view {
		status := "not owned"
		if p.Owned() {
			status = fmt.Sprintf("owned (%d)", len(p.Purchases))
		}
		fmt.Fprintf(&b, "%-30s %-13s %-10s %s\n", p.Product.ID, p.Product.Kind, p.Product.Price, status)
		for _, pu := range p.Purchases {
			order := pu.OrderID
			if order == "" {
				order = "-"
			}
			fmt.Fprintf(&b, "  %s  order=%s  time=%d\n", pu.Token, order, pu.PurchaseTime)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// OwnedResult is the output of the owned command.
type OwnedResult struct {
	ProductID string `json:"product_id"`
	Owned     bool   `json:"owned"`
}

// NewOwnedCommand creates the owned command.
func NewOwnedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "owned <product-id>",
		Short: "Report whether a product has a cached purchase",
		Long: `Report whether at least one purchase of a product is recorded in the
purchase cache. The hidden product is not excluded here.

Example:
  billsync owned --db ./billing.db app_premium_feature`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOwned(opts, args[0], cmd)
		},
	}
	opts.bind(cmd)

	return cmd
}

func runOwned(opts *CacheOptions, productID string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	st, err := opts.openCache(out)
	if err != nil {
		return err
	}
	defer closeCache(st)

	owned, err := st.HasPurchase(commandContext(cmd), productID)
	if err != nil {
		return out.Failure(ExitCommandError, ErrCodeCache, err.Error(), nil, nil)
	}

	text := productID + ": not owned"
	if owned {
		text = productID + ": owned"
	}
	return out.Success(OwnedResult{ProductID: productID, Owned: owned}, text)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
