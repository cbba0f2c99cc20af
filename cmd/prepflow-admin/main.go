// Command prepflow-admin runs operator tasks: schema migrations, job inspection and band score checks.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/prepflow/config"
	"github.com/target/prepflow/internal/bootstrap"
)

const defaultMigrationTimeout = 5 * time.Minute

// app carries state shared by the subcommands. Configuration and the database are opened lazily so
// commands that need neither work without them.
type app struct {
	logger *slog.Logger

	loadOnce sync.Once
	cfg      config.AppConfig
	cfgErr   error
}

func main() {
	logger := bootstrap.InitLogger()
	root := newRootCmd(&app{logger: logger})
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1) //nolint:forbidigo // CLI must signal failure to shell scripts
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "prepflow-admin",
		Short:         "Operator tools for prepflow",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newMigrateCmd(a), newJobCmd(a), newBandCmd())
	return root
}

func (a *app) config() (config.AppConfig, error) {
	a.loadOnce.Do(func() {
		a.cfg, a.cfgErr = bootstrap.LoadConfig()
	})
	return a.cfg, a.cfgErr
}

// openDB connects to PostgreSQL using the loaded configuration.
func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: a.logger})
}

func (a *app) closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		a.logger.Error("close database failed", "error", err)
	}
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
