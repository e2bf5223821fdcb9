// shopctl is a CLI for exercising storefront flows through the gateway's
// session core. Each command performs a single operation, making it
// composable for scripts. The guest cart persists in a local database
// between invocations; authenticated sessions are carried via -token.
//
// Commands:
//
//	shopctl login -origin URL -email E -password P
//	shopctl search -origin URL [-query Q]
//	shopctl add -origin URL -product ID [-variant ID] [-qty N]
//	shopctl cart -origin URL
//	shopctl preview -origin URL -items id1,id2
//	shopctl checkout -origin URL -token T -items id1,id2
//
// Examples:
//
//	# Shop as a guest, then sign in and let the cart merge
//	shopctl add -origin http://localhost:3000/api -product 7 -qty 2
//	TOKEN=$(shopctl login -origin http://localhost:3000/api -email a@b.c -password secret -q)
//	shopctl cart -origin http://localhost:3000/api -token "$TOKEN"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"shopagent/internal/model"
	"shopagent/internal/storefront"
)

// ANSI color codes
var (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		colorReset, colorRed, colorGreen = "", "", ""
		colorCyan, colorGray, colorBold = "", "", ""
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "login":
		runLogin(args)
	case "register":
		runRegister(args)
	case "logout":
		runLogout(args)
	case "cart":
		runCart(args)
	case "add":
		runAdd(args)
	case "set-qty":
		runSetQty(args)
	case "remove":
		runRemove(args)
	case "preview":
		runPreview(args)
	case "search":
		runSearch(args)
	case "checkout":
		runCheckout(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shopctl - storefront flow test tool

Usage:
  shopctl <command> [options]

Commands:
  login     Sign in and print the bearer credential
  register  Create an account and print the bearer credential
  logout    End the session
  cart      Show the cart (guest ledger, or account cart with -token)
  add       Add a product to the cart
  set-qty   Change a cart line's quantity (0 removes it)
  remove    Remove a cart line
  preview   Preview promotions for selected line IDs
  search    Search the product catalog
  checkout  Create an order from selected line IDs (requires -token)

Examples:
  # Guest cart persists in the local ledger between invocations
  shopctl add -origin http://localhost:3000/api -product 7 -qty 2

  # Sign in, capture the credential, and watch the guest cart merge
  TOKEN=$(shopctl login -origin http://localhost:3000/api -email a@b.c -password secret -q)
  shopctl cart -origin http://localhost:3000/api -token "$TOKEN"

Run 'shopctl <command> -h' for command-specific options.
`)
}

// commonFlags are shared by every command.
type commonFlags struct {
	origin string
	ledger string
	token  string
	quiet  bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.origin, "origin", os.Getenv("STOREFRONT_ORIGIN"), "storefront API origin")
	fs.StringVar(&cf.ledger, "ledger", defaultLedger(), "guest cart database path")
	fs.StringVar(&cf.token, "token", os.Getenv("SHOPCTL_TOKEN"), "bearer credential from a prior login")
	fs.BoolVar(&cf.quiet, "q", false, "machine-readable output only")
	return cf
}

func defaultLedger() string {
	if p := os.Getenv("LEDGER_PATH"); p != "" {
		return p
	}
	return "guest-cart.db"
}

// newClient builds a storefront client for one invocation, restoring the
// session from -token when present. Restoring flips the authentication
// signal, which drives the guest cart merge exactly as a login would.
func newClient(cf *commonFlags) *storefront.Client {
	if cf.origin == "" {
		fatal("origin is required (flag -origin or STOREFRONT_ORIGIN)")
	}
	client, err := storefront.New(storefront.Config{
		Origin:     cf.origin,
		LedgerPath: cf.ledger,
		Timeout:    30 * time.Second,
	})
	if err != nil {
		fatal("creating client: %v", err)
	}
	if cf.token != "" {
		if err := client.Resume(cf.token); err != nil {
			client.Close()
			fatal("restoring session: %v", err)
		}
	}
	return client
}

func runLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	cf := registerCommon(fs)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)

	if *email == "" || *password == "" {
		fatal("login requires -email and -password")
	}

	client := newClient(cf)
	defer client.Close()

	ctx := context.Background()
	if err := client.Login(ctx, *email, *password); err != nil {
		fatal("login failed: %v", err)
	}

	bearer, ok := client.Bearer()
	if !ok {
		fatal("login succeeded but no credential was stored")
	}
	if cf.quiet {
		fmt.Println(bearer)
		return
	}
	fmt.Printf("%sSigned in.%s Export for later commands:\n", colorGreen, colorReset)
	fmt.Printf("  export SHOPCTL_TOKEN=%s\n", bearer)
}

func runRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	cf := registerCommon(fs)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "display name")
	fs.Parse(args)

	if *email == "" || *password == "" {
		fatal("register requires -email and -password")
	}

	client := newClient(cf)
	defer client.Close()

	if err := client.Register(context.Background(), *email, *password, *name); err != nil {
		fatal("register failed: %v", err)
	}

	bearer, ok := client.Bearer()
	if !ok {
		fatal("registration succeeded but no credential was stored")
	}
	if cf.quiet {
		fmt.Println(bearer)
		return
	}
	fmt.Printf("%sAccount created and signed in.%s\n", colorGreen, colorReset)
	fmt.Printf("  export SHOPCTL_TOKEN=%s\n", bearer)
}

func runLogout(args []string) {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)

	client := newClient(cf)
	defer client.Close()

	if err := client.Logout(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%swarning:%s server-side logout failed: %v\n", colorRed, colorReset, err)
	}
	if !cf.quiet {
		fmt.Println("Signed out.")
	}
}

func runCart(args []string) {
	fs := flag.NewFlagSet("cart", flag.ExitOnError)
	cf := registerCommon(fs)
	asJSON := fs.Bool("json", false, "print raw JSON")
	fs.Parse(args)

	client := newClient(cf)
	defer client.Close()

	snap, err := client.Cart(context.Background())
	if err != nil {
		fatal("fetching cart: %v", err)
	}

	if *asJSON || cf.quiet {
		printJSON(snap)
		return
	}
	printCart(snap, client.IsAuthenticated())
}

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	cf := registerCommon(fs)
	productID := fs.String("product", "", "product ID")
	variantID := fs.String("variant", "", "variant ID")
	qty := fs.Int("qty", 1, "quantity")
	fs.Parse(args)

	if *productID == "" {
		fatal("add requires -product")
	}

	client := newClient(cf)
	defer client.Close()

	ctx := context.Background()

	// Snapshot the catalog price so guest ledger rows carry the price
	// displayed at add time.
	product, err := client.GetProduct(ctx, *productID)
	if err != nil {
		fatal("looking up product: %v", err)
	}
	price, name := product.Price, product.Name
	if *variantID != "" {
		found := false
		for _, v := range product.Variants {
			if v.ID == *variantID {
				price, name, found = v.Price, product.Name+" ("+v.Name+")", true
				break
			}
		}
		if !found {
			fatal("product %s has no variant %s", *productID, *variantID)
		}
	}

	if err := client.AddToCart(ctx, *productID, *variantID, *qty, price, name, product.ImageURL); err != nil {
		fatal("adding to cart: %v", err)
	}
	if cf.quiet {
		fmt.Println(model.LineItemKey(*productID, *variantID))
		return
	}
	fmt.Printf("%sAdded%s %dx %s (%s each)\n",
		colorGreen, colorReset, *qty, name, model.FormatMinorUnits(price))
}

func runSetQty(args []string) {
	fs := flag.NewFlagSet("set-qty", flag.ExitOnError)
	cf := registerCommon(fs)
	itemID := fs.String("item", "", "cart line item ID")
	qty := fs.Int("qty", -1, "new quantity (0 removes the line)")
	fs.Parse(args)

	if *itemID == "" || *qty < 0 {
		fatal("set-qty requires -item and -qty")
	}

	client := newClient(cf)
	defer client.Close()

	if err := client.SetQuantity(context.Background(), *itemID, *qty); err != nil {
		fatal("updating quantity: %v", err)
	}
	if !cf.quiet {
		fmt.Printf("Line %s set to quantity %d.\n", *itemID, *qty)
	}
}

func runRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	cf := registerCommon(fs)
	itemID := fs.String("item", "", "cart line item ID")
	fs.Parse(args)

	if *itemID == "" {
		fatal("remove requires -item")
	}

	client := newClient(cf)
	defer client.Close()

	if err := client.RemoveItem(context.Background(), *itemID); err != nil {
		fatal("removing item: %v", err)
	}
	if !cf.quiet {
		fmt.Printf("Line %s removed.\n", *itemID)
	}
}

func runPreview(args []string) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	cf := registerCommon(fs)
	items := fs.String("items", "", "comma-separated line item IDs")
	fs.Parse(args)

	if *items == "" {
		fatal("preview requires -items")
	}
	itemIDs := strings.Split(*items, ",")

	client := newClient(cf)
	defer client.Close()

	preview, err := client.PreviewPromotions(context.Background(), itemIDs)
	if err != nil {
		fatal("previewing promotions: %v", err)
	}

	if cf.quiet {
		printJSON(preview)
		return
	}
	fmt.Printf("%sSubtotal:%s  %s\n", colorBold, colorReset, model.FormatMinorUnits(preview.Subtotal))
	fmt.Printf("%sDiscount:%s -%s\n", colorBold, colorReset, model.FormatMinorUnits(preview.DiscountAmount))
	fmt.Printf("%sTotal:%s     %s\n", colorBold, colorReset, model.FormatMinorUnits(preview.FinalAmount))
	for _, p := range preview.Promotions {
		fmt.Printf("  %s%s%s -%s\n", colorCyan, p.Description, colorReset, model.FormatMinorUnits(p.Amount))
	}
	for _, g := range preview.GiftItems {
		fmt.Printf("  %sgift:%s %dx %s\n", colorGreen, colorReset, g.Quantity, g.Name)
	}
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cf := registerCommon(fs)
	query := fs.String("query", "", "search query (empty lists all)")
	fs.Parse(args)

	client := newClient(cf)
	defer client.Close()

	products, err := client.SearchProducts(context.Background(), *query)
	if err != nil {
		fatal("searching products: %v", err)
	}

	if cf.quiet {
		printJSON(products)
		return
	}
	for _, p := range products {
		fmt.Printf("%s%-10s%s %-40s %s\n",
			colorGray, p.ID, colorReset, p.Name, model.FormatMinorUnits(p.Price))
		for _, v := range p.Variants {
			fmt.Printf("  %s%-10s%s %-38s %s\n",
				colorGray, v.ID, colorReset, v.Name, model.FormatMinorUnits(v.Price))
		}
	}
}

func runCheckout(args []string) {
	fs := flag.NewFlagSet("checkout", flag.ExitOnError)
	cf := registerCommon(fs)
	items := fs.String("items", "", "comma-separated line item IDs")
	fs.Parse(args)

	if *items == "" {
		fatal("checkout requires -items")
	}
	if cf.token == "" {
		fatal("checkout requires -token (sign in first)")
	}
	itemIDs := strings.Split(*items, ",")

	client := newClient(cf)
	defer client.Close()

	result, err := client.Checkout(context.Background(), itemIDs)
	if err != nil {
		fatal("checkout: %v", err)
	}

	if cf.quiet {
		fmt.Println(result.OrderID)
		return
	}
	fmt.Printf("%sOrder created:%s %s\n", colorGreen, colorReset, result.OrderID)
	if result.PaymentRedirectURL != "" {
		fmt.Printf("Complete payment at: %s\n", result.PaymentRedirectURL)
	}
}

func printCart(snap model.CartSnapshot, authenticated bool) {
	mode := "guest"
	if authenticated {
		mode = "account"
	}
	fmt.Printf("%sCart (%s)%s\n", colorBold, mode, colorReset)
	if len(snap.Items) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for _, li := range snap.Items {
		fmt.Printf("  %s%-24s%s %2dx %-32s %s\n",
			colorGray, li.ID, colorReset, li.Quantity, li.Name,
			model.FormatMinorUnits(li.Subtotal()))
	}
	fmt.Printf("  Subtotal: %s\n", model.FormatMinorUnits(snap.TotalAmount))
	if snap.DiscountAmount > 0 {
		fmt.Printf("  Discount: -%s\n", model.FormatMinorUnits(snap.DiscountAmount))
	}
	fmt.Printf("  %sTotal:    %s%s\n", colorBold, model.FormatMinorUnits(snap.FinalAmount), colorReset)
	for _, g := range snap.GiftItems {
		fmt.Printf("  %sgift:%s %dx %s\n", colorGreen, colorReset, g.Quantity, g.Name)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encoding output: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"error:"+colorReset+" "+format+"\n", args...)
	os.Exit(1)
}
