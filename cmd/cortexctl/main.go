// Command cortexctl is the operator CLI for one-off footprint and
// compliance-certificate operations against a running Cortex store,
// built on github.com/spf13/cobra with a root command plus one file per
// subcommand.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexai/cortex-engine/internal/config"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/internal/storeopen"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "cortexctl",
	Short: "Operator CLI for the Cortex attribution and provenance engine",
	Long: `cortexctl runs one-off footprint and compliance operations against
a Cortex store, reading CORTEX_DATABASE_URL the same way cortex-server does.

Examples:
  cortexctl footprint alice
  cortexctl certificate issue alice --type gdpr_deletion
  cortexctl decay`,
}

func main() {
	cfg = config.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore mirrors cmd/cortex-server's backend dispatch so the CLI works
// against either the sqlite test harness or the production postgres
// backend without the operator choosing explicitly.
func openStore(ctx context.Context) (store.Store, error) {
	return storeopen.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
}
