// Command admin runs the reconciliation jobs and refunds by hand, without
// the HTTP surface.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/kevin07696/checkout-reconciler/internal/app"
	"github.com/kevin07696/checkout-reconciler/internal/config"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/services/signature"
)

const usageText = `Usage: admin <command> [options]

Commands:
  sweep [--catchup-since RFC3339] [--order ID ...]  Cancel abandoned online-payment orders
  create-settlements [--date YYYY-MM-DD]            Settle yesterday's delivered orders per merchant
  scan-settlements                                  Flag overdue merchant settlements
  expire-custom-orders                              Expire stale custom-order quotes
  refund --order ID [--amount 12.50] --reason TEXT  Refund a paid order through the gateway
  sign key=value ...                                Print the callback signature for params
`

// AdminCLI holds the services a command needs
type AdminCLI struct {
	deps   *app.App
	out    io.Writer
	logger *zap.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	if err := config.LoadDotEnv(); err != nil {
		fatal(err)
	}

	command, args := os.Args[1], os.Args[2:]
	if command == "sign" {
		if err := runSign(args, os.Stdout); err != nil {
			fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fatal(err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.ConnectionString())
	if err != nil {
		fatal(fmt.Errorf("connect to database: %w", err))
	}
	defer pool.Close()

	provider, err := app.NewSecretProvider(ctx, cfg.Secrets, logger)
	if err != nil {
		fatal(err)
	}
	keys, err := app.ResolveGatewayKeys(ctx, cfg.Gateway, provider, logger)
	if err != nil {
		fatal(err)
	}
	deps, err := app.Build(ctx, cfg, pool, keys, logger)
	if err != nil {
		fatal(err)
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = deps.Tracker.Shutdown(drainCtx)
		_ = deps.Close()
	}()

	cli := &AdminCLI{deps: deps, out: os.Stdout, logger: logger}

	switch command {
	case "sweep":
		err = cli.sweep(ctx, args)
	case "create-settlements":
		err = cli.createSettlements(ctx, args)
	case "scan-settlements":
		err = cli.scanSettlements(ctx)
	case "expire-custom-orders":
		err = cli.expireCustomOrders(ctx)
	case "refund":
		err = cli.refund(ctx, args, os.Stdin)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", command, usageText)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

// stringList collects a repeatable flag
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func (cli *AdminCLI) sweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	since := fs.String("catchup-since", "", "sweep orders created since this RFC3339 time")
	var orders stringList
	fs.Var(&orders, "order", "sweep only this order (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := sweepRequest(*since, orders)
	if err != nil {
		return err
	}
	ctx, cancel := cli.deps.Timeouts.CronContext(ctx)
	defer cancel()

	report, err := cli.deps.Sweeper.Sweep(ctx, req)
	if err != nil {
		return err
	}
	return cli.print(report)
}

func sweepRequest(since string, orders []string) (domain.SweepRequest, error) {
	switch {
	case since != "" && len(orders) > 0:
		return nil, fmt.Errorf("--catchup-since and --order are mutually exclusive")
	case len(orders) > 0:
		return domain.SweepOrders{IDs: orders}, nil
	case since != "":
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return nil, fmt.Errorf("--catchup-since: %w", err)
		}
		return domain.SweepCatchup{Since: t}, nil
	default:
		return domain.SweepStale{}, nil
	}
}

func (cli *AdminCLI) createSettlements(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-settlements", flag.ContinueOnError)
	date := fs.String("date", "", "settle this day instead of yesterday")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := cli.deps.Timeouts.CronContext(ctx)
	defer cancel()

	if *date == "" {
		report, err := cli.deps.SettlementRuns.Generate(ctx)
		if err != nil {
			return err
		}
		return cli.print(report)
	}

	day, err := time.Parse("2006-01-02", *date)
	if err != nil {
		return fmt.Errorf("--date: %w", err)
	}
	report, err := cli.deps.SettlementRuns.GenerateDay(ctx, day)
	if err != nil {
		return err
	}
	return cli.print(report)
}

func (cli *AdminCLI) scanSettlements(ctx context.Context) error {
	ctx, cancel := cli.deps.Timeouts.CronContext(ctx)
	defer cancel()

	report, err := cli.deps.Settlements.Scan(ctx)
	if err != nil {
		return err
	}
	return cli.print(report)
}

func (cli *AdminCLI) expireCustomOrders(ctx context.Context) error {
	ctx, cancel := cli.deps.Timeouts.CronContext(ctx)
	defer cancel()

	report, err := cli.deps.CustomOrders.Expire(ctx)
	if err != nil {
		return err
	}
	return cli.print(report)
}

func (cli *AdminCLI) refund(ctx context.Context, args []string, stdin *os.File) error {
	fs := flag.NewFlagSet("refund", flag.ContinueOnError)
	orderID := fs.String("order", "", "order id")
	amountStr := fs.String("amount", "", "partial amount, defaults to the order total")
	reason := fs.String("reason", "", "refund reason")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *orderID == "" {
		return fmt.Errorf("--order is required")
	}
	if strings.TrimSpace(*reason) == "" {
		return fmt.Errorf("--reason is required")
	}

	var amount *decimal.Decimal
	if *amountStr != "" {
		a, err := decimal.NewFromString(*amountStr)
		if err != nil {
			return fmt.Errorf("--amount: %w", err)
		}
		amount = &a
	}

	if !*yes {
		if !term.IsTerminal(int(stdin.Fd())) {
			return fmt.Errorf("refusing to refund without --yes when stdin is not a terminal")
		}
		what := "the full order total"
		if amount != nil {
			what = amount.StringFixed(2)
		}
		fmt.Fprintf(cli.out, "Refund %s for order %s? [y/N] ", what, *orderID)
		if !confirm(stdin) {
			return fmt.Errorf("refund aborted")
		}
	}

	ctx, cancel := cli.deps.Timeouts.HandlerContext(ctx)
	defer cancel()

	result, err := cli.deps.Refunds.Refund(ctx, *orderID, amount, *reason)
	if err != nil {
		return err
	}
	return cli.print(result)
}

func confirm(r io.Reader) bool {
	line, _ := bufio.NewReader(r).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// runSign prints the signature the gateway would send for params. The key
// comes from KASHIER_SECRET_KEY or, on a terminal, a hidden prompt.
func runSign(args []string, out io.Writer) error {
	params, err := parseParams(args)
	if err != nil {
		return err
	}

	secret := os.Getenv("KASHIER_SECRET_KEY")
	if secret == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Callback secret: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = string(raw)
	}

	sig, err := signature.NewVerifier(secret).Sign(params)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, sig)
	return nil
}

func parseParams(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("sign needs at least one key=value pair")
	}
	params := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", arg)
		}
		params[k] = v
	}
	return params, nil
}

func (cli *AdminCLI) print(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
