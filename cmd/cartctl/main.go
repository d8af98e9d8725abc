// cartctl is a command-line shopper that keeps one cart in a local file.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl add -product ID [-qty N]
//	cartctl remove -product ID
//	cartctl set -product ID -qty N
//	cartctl clear
//	cartctl show
//	cartctl reconcile [-trigger refresh|passive] [-yes]
//	cartctl checkout -email ADDR -name "First Last" -address "LINE1;CITY;STATE;POSTAL" [-yes]
//
// Every command accepts -backend URL (empty uses the built-in demo catalog)
// and -cart FILE.
//
// Examples:
//
//	cartctl add -product 3 -qty 2
//	cartctl reconcile -trigger refresh -yes
//	cartctl checkout -email a@example.com -name "Ada Lovelace" -address "1 King St W;Toronto;ON;M5H 1A1" -yes
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/order"
	"storefront/internal/reconcile"
)

// Global flags (apply to all commands)
var (
	backendURL string
	cartFile   string
	quiet      bool
	noColor    bool
	verbose    bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "add":
		err = runAdd(args)
	case "remove":
		err = runRemove(args)
	case "set":
		err = runSet(args)
	case "clear":
		err = runClear(args)
	case "show":
		err = runShow(args)
	case "reconcile":
		err = runReconcile(args)
	case "checkout":
		err = runCheckout(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal("%v", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - storefront cart from the command line

Usage:
  cartctl <command> [options]

Commands:
  add        Add units of a product to the cart
  remove     Remove a product from the cart
  set        Set a product's quantity (0 removes it)
  clear      Empty the cart
  show       Show cart contents and an estimate
  reconcile  Validate the cart against the store
  checkout   Validate the cart and place an order

Examples:
  # Add two of product 3 using the demo catalog
  cartctl add -product 3 -qty 2

  # Refresh against a real API, applying any changes
  cartctl reconcile -backend http://127.0.0.1:8000/api -trigger refresh -yes

  # Place the order
  cartctl checkout -email a@example.com -name "Ada Lovelace" \
    -address "1 King St W;Toronto;ON;M5H 1A1" -yes

Run 'cartctl <command> -h' for command-specific options.
`)
}

// =============================================================================
// CART ENVIRONMENT
// =============================================================================

// env is the cart, catalog and controller one command works against.
type env struct {
	api     backend.Backend
	store   *cart.Store
	catalog *catalog.Snapshot
	ctrl    *reconcile.Controller
	queue   *notify.Queue
	orders  *order.Service
}

func defaultCartFile() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cartctl", "cart.json")
	}
	return "cart.json"
}

func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&backendURL, "backend", os.Getenv("STOREFRONT_BACKEND_URL"), "Storefront API base URL (empty uses the demo catalog)")
	fs.StringVar(&cartFile, "cart", defaultCartFile(), "Cart file")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only print errors")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - log cart and API activity")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// open builds the environment after flags are parsed. The cart file's
// base name, without .json, is the storage key.
func open(ctx context.Context) (*env, error) {
	if noColor {
		disableColors()
	}

	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	storage, err := cart.NewFileStorage(filepath.Dir(cartFile))
	if err != nil {
		return nil, err
	}
	key := strings.TrimSuffix(filepath.Base(cartFile), ".json")

	var api backend.Backend
	if backendURL == "" {
		api = backend.NewFake(backend.DemoCatalog())
	} else {
		client, err := backend.NewHTTPClient(backend.Config{
			BaseURL: backendURL,
			APIKey:  os.Getenv("STOREFRONT_API_KEY"),
			Timeout: 30 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		api = client
	}

	e := &env{
		api:     api,
		store:   cart.Open(ctx, storage, key, logger),
		catalog: catalog.New(api, logger),
		queue:   notify.NewQueue(0),
	}
	e.ctrl = reconcile.New(e.store, api, e.queue, logger)
	e.orders = order.New(order.Deps{
		Backend:  api,
		Cart:     e.store,
		Gate:     e.ctrl,
		Prices:   e.catalog,
		Notifier: e.queue,
		Logger:   logger,
	})
	return e, nil
}

// loadCatalog refreshes the snapshot; a failure only degrades local checks.
func (e *env) loadCatalog(ctx context.Context) {
	if err := e.catalog.Refresh(ctx); err != nil {
		printWarning("catalog unavailable: %v", err)
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runAdd(args []string) error {
	fs := newFlagSet("add", "add -product ID [-qty N] [options]")
	var productID string
	var quantity int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.IntVar(&quantity, "qty", 1, "Quantity to add")
	fs.Parse(args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	e, err := open(ctx)
	if err != nil {
		return err
	}
	e.loadCatalog(ctx)

	id := model.ProductID(productID)
	if quantity <= 0 {
		quantity = 1
	}
	if err := e.store.AddItemChecked(ctx, id, quantity, func(desired int) error {
		return e.catalog.CheckQuantity(id, desired)
	}); err != nil {
		return err
	}
	printSuccess("Added %d × %s", quantity, productName(e.catalog, id))
	printInfo("%d item(s) in cart", e.store.TotalItems())
	return nil
}

func runRemove(args []string) error {
	fs := newFlagSet("remove", "remove -product ID [options]")
	var productID string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.Parse(args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	e, err := open(ctx)
	if err != nil {
		return err
	}

	id := model.ProductID(productID)
	if e.store.ItemQuantity(id) == 0 {
		printWarning("Product %s is not in the cart", id)
		return nil
	}
	e.store.RemoveItem(ctx, id)
	printSuccess("Removed product %s", id)
	return nil
}

func runSet(args []string) error {
	fs := newFlagSet("set", "set -product ID -qty N [options]")
	var productID string
	var quantity int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.IntVar(&quantity, "qty", -1, "New quantity, 0 removes (required)")
	fs.Parse(args)

	if productID == "" || quantity < 0 {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	e, err := open(ctx)
	if err != nil {
		return err
	}

	id := model.ProductID(productID)
	if quantity > 0 {
		e.loadCatalog(ctx)
		if err := e.catalog.CheckQuantity(id, quantity); err != nil {
			return err
		}
	}
	e.store.UpdateQuantity(ctx, id, quantity)
	printSuccess("Product %s quantity set to %d", id, quantity)
	return nil
}

func runClear(args []string) error {
	fs := newFlagSet("clear", "clear [options]")
	fs.Parse(args)

	ctx := context.Background()
	e, err := open(ctx)
	if err != nil {
		return err
	}
	e.store.Clear(ctx)
	printSuccess("Cart cleared")
	return nil
}

func runShow(args []string) error {
	fs := newFlagSet("show", "show [options]")
	fs.Parse(args)

	ctx := context.Background()
	e, err := open(ctx)
	if err != nil {
		return err
	}

	items := e.store.Items()
	if len(items) == 0 {
		printInfo("Cart is empty")
		return nil
	}
	e.loadCatalog(ctx)

	var priced []model.ValidItem
	fmt.Printf("%sCart%s (%d items)\n", colorBold, colorReset, e.store.TotalItems())
	for _, item := range items {
		p, ok := e.catalog.Get(item.ProductID)
		if !ok {
			fmt.Printf("  %-6s %-36s ×%-3d %s(unknown)%s\n", item.ProductID, "?", item.Quantity, colorGray, colorReset)
			continue
		}
		priced = append(priced, model.ValidItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: p.Price})
		fmt.Printf("  %-6s %-36s ×%-3d %s\n", item.ProductID, p.Name, item.Quantity,
			model.FormatCAD(model.LineTotal(p.Price, item.Quantity)))
	}

	est := order.Estimate(priced, model.DefaultTaxRate)
	fmt.Printf("  %sSubtotal %s  Tax %s  Total %s (before shipping)%s\n", colorCyan,
		model.FormatCAD(est.Subtotal), model.FormatCAD(est.TaxAmount), model.FormatCAD(est.TotalAmount), colorReset)
	return nil
}

// =============================================================================
// RECONCILE / CHECKOUT
// =============================================================================

func runReconcile(args []string) error {
	fs := newFlagSet("reconcile", "reconcile [-trigger refresh|passive] [-yes] [options]")
	var triggerName string
	var yes bool
	fs.StringVar(&triggerName, "trigger", string(reconcile.TriggerRefresh), "refresh (confirm changes) or passive (apply silently)")
	fs.BoolVar(&yes, "yes", false, "Apply proposed changes without asking")
	fs.Parse(args)

	trigger, err := reconcile.ParseTrigger(triggerName)
	if err != nil {
		return err
	}
	if trigger == reconcile.TriggerCheckout {
		return errors.New("use the checkout command to check out")
	}

	ctx := context.Background()
	e, err := open(ctx)
	if err != nil {
		return err
	}

	out, err := e.ctrl.Reconcile(ctx, trigger)
	printNotifications(e.queue)
	if err != nil {
		return err
	}
	_, err = e.settle(ctx, out, yes)
	return err
}

// settle resolves a held diff: applied with -yes, otherwise printed and left.
// It reports whether the cart is ready to proceed.
func (e *env) settle(ctx context.Context, out *reconcile.Outcome, yes bool) (bool, error) {
	if out.Stale {
		return false, errors.New("cart changed during validation; run the command once more")
	}
	if out.Confirmation == nil {
		if !out.CartChanged {
			printSuccess("Cart is up to date")
		}
		return out.ProceedToCheckout, nil
	}

	printConfirmation(out.Confirmation)
	if !yes {
		printWarning("Re-run with -yes to %s", strings.ToLower(out.Confirmation.ConfirmLabel))
		return false, nil
	}

	applied, err := e.ctrl.Confirm(ctx)
	printNotifications(e.queue)
	if err != nil {
		return false, err
	}
	if applied.Confirmation != nil {
		// The cart moved under the diff and the fresh result differs again.
		printConfirmation(applied.Confirmation)
		return false, errors.New("cart changed again while applying; run the command once more")
	}
	if applied.Stale {
		return false, errors.New("cart changed during validation; run the command once more")
	}
	if applied.Result != nil {
		printSuccess("Cart updated: %s", reconcile.Summary(applied.Result))
	}
	return applied.ProceedToCheckout, nil
}

func runCheckout(args []string) error {
	fs := newFlagSet("checkout", "checkout -email ADDR -name NAME -address ADDR [options]")
	var (
		email, name, phone, address string
		payment, shipping           string
		yes                         bool
	)
	fs.StringVar(&email, "email", "", "Customer email (required)")
	fs.StringVar(&name, "name", "", `Customer name, "First Last" (required)`)
	fs.StringVar(&phone, "phone", "", "Phone number")
	fs.StringVar(&address, "address", "", `Billing and shipping address "LINE1;CITY;STATE;POSTAL[;COUNTRY]" (required)`)
	fs.StringVar(&payment, "payment", model.PaymentPurchaseOrder, "Payment method: card or purchase_order")
	fs.StringVar(&shipping, "shipping", model.ShippingStandard, "Shipping method: standard or express")
	fs.BoolVar(&yes, "yes", false, "Accept cart changes found during validation")
	fs.Parse(args)

	if email == "" || name == "" || address == "" {
		fs.Usage()
		os.Exit(1)
	}
	addr, err := parseAddress(address)
	if err != nil {
		return err
	}
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")

	ctx := context.Background()
	e, err := open(ctx)
	if err != nil {
		return err
	}
	e.loadCatalog(ctx)

	out, err := e.ctrl.Reconcile(ctx, reconcile.TriggerCheckout)
	printNotifications(e.queue)
	if err != nil {
		return err
	}
	ready, err := e.settle(ctx, out, yes)
	if err != nil {
		return err
	}
	if !ready {
		return model.NewCheckoutBlockedError("cart was not cleared for checkout")
	}

	conf, err := e.orders.Submit(ctx, &model.OrderForm{
		Email:          email,
		FirstName:      first,
		LastName:       strings.TrimSpace(last),
		Phone:          phone,
		Billing:        addr,
		Shipping:       addr,
		PaymentMethod:  payment,
		ShippingMethod: shipping,
	})
	printNotifications(e.queue)
	if err != nil {
		return err
	}

	if quiet {
		fmt.Println(conf.OrderNumber)
		return nil
	}
	fmt.Printf("  Order:  %s%s%s\n", colorCyan, conf.OrderNumber, colorReset)
	fmt.Printf("  Status: %s / %s\n", conf.Status, conf.PaymentStatus)
	fmt.Printf("  Total:  %s\n", model.FormatCAD(conf.TotalAmount))
	return nil
}

// parseAddress splits "LINE1;CITY;STATE;POSTAL[;COUNTRY]".
func parseAddress(s string) (model.Address, error) {
	parts := strings.Split(s, ";")
	if len(parts) != 4 && len(parts) != 5 {
		return model.Address{}, fmt.Errorf("address must be LINE1;CITY;STATE;POSTAL[;COUNTRY], got %q", s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	addr := model.Address{Line1: parts[0], City: parts[1], State: parts[2], PostalCode: parts[3]}
	if len(parts) == 5 {
		addr.Country = strings.ToUpper(parts[4])
	}
	return addr, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func productName(snap *catalog.Snapshot, id model.ProductID) string {
	if p, ok := snap.Get(id); ok {
		return p.Name
	}
	return "product " + id.String()
}

func printConfirmation(c *reconcile.Confirmation) {
	if quiet {
		return
	}
	fmt.Printf("%sProposed cart changes%s\n", colorBold, colorReset)
	for _, r := range c.Removed {
		fmt.Printf("  %s- remove %s%s\n", colorRed, itemLabel(r.ProductName, r.ProductID), colorReset)
	}
	for _, u := range c.Updated {
		fmt.Printf("  %s~ %s: %d → %d%s\n", colorYellow, itemLabel(u.ProductName, u.ProductID),
			u.OriginalQuantity, u.AdjustedQuantity, colorReset)
	}
	for _, v := range c.Valid {
		fmt.Printf("  %s  keep %s ×%d%s\n", colorGray, itemLabel(v.ProductName, v.ProductID), v.Quantity, colorReset)
	}
}

func itemLabel(name string, id model.ProductID) string {
	if name != "" {
		return name
	}
	return "product " + id.String()
}

func printNotifications(q *notify.Queue) {
	for _, n := range q.Drain() {
		text := n.Title
		if n.Message != "" {
			text += ": " + n.Message
		}
		switch n.Level {
		case notify.LevelError:
			printError("%s", text)
		case notify.LevelWarning:
			printWarning("%s", text)
		case notify.LevelSuccess:
			printSuccess("%s", text)
		default:
			printInfo("%s", text)
		}
	}
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...any) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
	}
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
