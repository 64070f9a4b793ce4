package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketsync/internal/app"
	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/config"
	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/store"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.WithLevel(logger.New(), cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	c := &cli{cfg: cfg, log: log, in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	os.Exit(c.exit(c.run(ctx, os.Args[1:])))
}

// cli carries what every command needs. store is set by tests to share one
// in-memory store across commands.
type cli struct {
	cfg    config.Config
	log    zerolog.Logger
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	store  store.Store
	prompt *terminal
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.usage()
		return flag.ErrHelp
	}

	switch args[0] {
	case "sync":
		return c.runSync(ctx, args[1:])
	case "create-sync":
		return c.runCreateSync(ctx, args[1:])
	case "config":
		return c.runConfig(ctx, args[1:])
	case "accounts":
		return c.runAccounts(ctx, args[1:])
	case "categories":
		return c.runCategories(ctx, args[1:])
	case "map-category":
		return c.runMapCategory(ctx, args[1:])
	case "auth":
		return c.runAuth(ctx, args[1:])
	case "providers":
		return c.runProviders(ctx, args[1:])
	case "help", "-h", "--help":
		c.usage()
		return nil
	default:
		fmt.Fprintf(c.errOut, "Unknown command: %s\n\n", args[0])
		c.usage()
		return flag.ErrHelp
	}
}

// exit maps err to a process exit code. User-visible errors print their
// message only; anything else is logged.
func (c *cli) exit(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(c.errOut, "Interrupted")
		return 130
	case apperr.IsUserVisible(err):
		var e *apperr.Error
		if errors.As(err, &e) && e.Message != "" {
			fmt.Fprintln(c.errOut, e.Message)
		} else {
			fmt.Fprintln(c.errOut, err)
		}
		return 1
	default:
		c.log.Error().Err(err).Str("kind", string(apperr.KindOf(err))).Msg("Command failed")
		return 1
	}
}

func (c *cli) usage() {
	fmt.Fprintln(c.out, "pocketsync - transaction sync between financial providers")
	fmt.Fprintln(c.out, "\nUsage:")
	fmt.Fprintln(c.out, "  pocketsync <command> [options]")
	fmt.Fprintln(c.out, "\nCommands:")
	fmt.Fprintln(c.out, "  sync [name]          Run a sync profile")
	fmt.Fprintln(c.out, "  create-sync          Create a sync profile between two accounts")
	fmt.Fprintln(c.out, "  config <provider>    Get or set provider config options")
	fmt.Fprintln(c.out, "  accounts <provider>  Fetch and list a provider's accounts")
	fmt.Fprintln(c.out, "  categories <provider> Fetch and list a provider's categories")
	fmt.Fprintln(c.out, "  map-category         Link a source category to a target category")
	fmt.Fprintln(c.out, "  auth <provider>      Authorise a provider through OAuth")
	fmt.Fprintln(c.out, "  providers            List available providers")
	fmt.Fprintln(c.out, "  help                 Show this help message")
	fmt.Fprintln(c.out, "\nRun 'pocketsync <command> -h' for more information on a command.")
}

func (c *cli) terminal() *terminal {
	if c.prompt == nil {
		c.prompt = newTerminal(c.in, c.out)
	}
	return c.prompt
}

// open bootstraps the app as user, or the configured default user.
func (c *cli) open(ctx context.Context, user string) (*app.App, error) {
	cfg := c.cfg
	if user != "" {
		cfg.DefaultUser = user
	}
	return app.New(ctx, cfg, c.log, app.Options{
		Store:  c.store,
		Prompt: c.terminal(),
		Out:    c.out,
	})
}

func (c *cli) closeApp(ctx context.Context, a *app.App) {
	if c.store != nil {
		return
	}
	if err := a.Close(context.WithoutCancel(ctx)); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close store")
	}
}

// newFlagSet returns a FlagSet that reports errors instead of exiting and
// carries the -user flag every command accepts.
func (c *cli) newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	user := fs.String("user", "", fmt.Sprintf("Execute as user (default: %s)", c.cfg.DefaultUser))
	return fs, user
}

// parseArgs parses flags that may appear before, between or after the
// positional arguments and returns the positionals.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}
