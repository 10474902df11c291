// rmrctl runs one-off operator tasks against the service's database:
// a reconcile pass, duplicate detection, a CSV payment import, or an email
// lookup. It reads the same environment as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"rmr/internal/app"
	"rmr/internal/platform/config"
	"rmr/internal/platform/logger"
	"rmr/pkg/requestcontext"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var operator string
	flagSet := pflag.NewFlagSet("rmrctl", pflag.ContinueOnError)
	flagSet.StringVar(&operator, "operator", os.Getenv("USER"), "operator name recorded on reviews and logs")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet)
		return errUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]
	if err := checkArity(cmd, cmdArgs); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	// one-shot: no scheduler
	cfg.Reconcile.Interval = 0

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if operator != "" {
		ctx = requestcontext.WithOperator(ctx, operator)
	}

	a, err := app.Build(ctx, cfg, logger.NewWithWriter(os.Stderr, cfg.Logging))
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := dispatch(ctx, a, cmd, cmdArgs)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func checkArity(cmd string, args []string) error {
	want := map[string]int{"reconcile": 0, "detect": 0, "import": 1, "resolve": 1}
	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

func dispatch(ctx context.Context, a *app.App, cmd string, args []string) (any, error) {
	switch cmd {
	case "reconcile":
		return a.Reconciler.Reconcile(ctx)
	case "detect":
		return a.Duplicates.Detect(ctx)
	case "import":
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return a.Ledger.Import(ctx, f)
	case "resolve":
		id, ok, err := a.Resolver.Resolve(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{"email": args[0], "resolved": ok, "client_id": id}, nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `rmrctl: operator tasks for the membership reconciler.

Usage:
  rmrctl [flags] reconcile        run one reconciliation pass
  rmrctl [flags] detect           refresh the duplicate review queue
  rmrctl [flags] import <csv>     import payments (email,amount,effective_date,source)
  rmrctl [flags] resolve <email>  show which client an email belongs to

Flags:
%s`, flagSet.FlagUsages())
}
