package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/pocketsync/internal/config"
	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/store/postgres"
)

func main() {
	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsn := fs.String("dsn", cfg.DatabaseURL, "Postgres DSN (or set POCKETSYNC_DATABASE_URL)")
	appliedBy := fs.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	status := fs.Bool("status", false, "List applied and pending migrations without applying any")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !strings.HasPrefix(*dsn, "postgres://") && !strings.HasPrefix(*dsn, "postgresql://") {
		return fmt.Errorf("-dsn must be a postgres:// URL, got %q", *dsn)
	}

	st, err := postgres.Open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	if *status {
		migrations, err := postgres.Migrations()
		if err != nil {
			return err
		}
		applied, err := postgres.AppliedMigrations(ctx, st.DB())
		if err != nil {
			return err
		}
		printStatus(out, migrations, applied)
		return nil
	}

	count, err := postgres.Migrate(ctx, st.DB(), *appliedBy)
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Fprintln(out, "No new migrations to apply. Database is up to date.")
	} else {
		fmt.Fprintf(out, "Successfully applied %d migration(s)\n", count)
	}
	return nil
}

func printStatus(out io.Writer, migrations []postgres.Migration, applied []postgres.AppliedMigration) {
	done := make(map[int]postgres.AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}
	for _, m := range migrations {
		am, ok := done[m.Version]
		switch {
		case !ok:
			fmt.Fprintf(out, "  [PENDING] %04d_%s\n", m.Version, m.Name)
		case am.Checksum != "" && am.Checksum != m.Checksum:
			fmt.Fprintf(out, "  [CHANGED] %04d_%s (applied %s)\n", m.Version, m.Name, am.AppliedAt.Format("2006-01-02"))
		default:
			fmt.Fprintf(out, "  [OK]      %04d_%s (applied %s by %s)\n", m.Version, m.Name, am.AppliedAt.Format("2006-01-02"), am.AppliedBy)
		}
	}
}
