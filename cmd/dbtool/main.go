// Command dbtool runs database migrations and maintenance operations.
//
//	dbtool migrate              apply pending migrations
//	dbtool rls status           print row level security per table
//	dbtool rls disable [table]  disable row level security (all tables by default)
//	dbtool rls enable [table]   enable row level security
//
// RLS on the catalog tables blocks the collector's bulk writes when the
// pipelines run as a non-owner role, so "rls disable" is part of the
// standard pipeline setup.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/showpulse/showpulse/internal/adapter/observability"
	"github.com/showpulse/showpulse/internal/adapter/repo/postgres"
	"github.com/showpulse/showpulse/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "migrate":
		if err := postgres.Migrate(cfg.DBURL); err != nil {
			slog.Error("migrate failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println("migrations applied")
	case "rls":
		if len(os.Args) < 3 {
			usage()
		}
		runRLS(cfg, os.Args[2], os.Args[3:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dbtool migrate | rls status | rls disable [table] | rls enable [table]")
	os.Exit(2)
}

func runRLS(cfg config.Config, action string, tables []string) {
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	maintainer := postgres.NewRLSMaintainer(pool)

	switch action {
	case "status":
		status, err := maintainer.RowSecurityStatus(ctx)
		if err != nil {
			slog.Error("rls status failed", slog.Any("error", err))
			os.Exit(1)
		}
		for table, enabled := range status {
			fmt.Printf("%s\trow_security=%v\n", table, enabled)
		}
	case "disable", "enable":
		if len(tables) == 0 {
			tables = []string{"shows", "episodes"}
		}
		enable := action == "enable"
		for _, table := range tables {
			if err := maintainer.SetRowSecurity(ctx, table, enable); err != nil {
				slog.Error("rls change failed", slog.String("table", table), slog.Any("error", err))
				os.Exit(1)
			}
			fmt.Printf("%s: row level security %sd\n", table, action)
		}
	default:
		usage()
	}
}
