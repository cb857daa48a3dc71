package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/config"
)

var cfg *config.Config

// errTransient marks failures worth retrying, e.g. the engine still loading.
// They exit with code 2 so callers can distinguish them from user errors.
var errTransient = eris.New("transient failure")

var rootCmd = &cobra.Command{
	Use:   "utility-lookup",
	Short: "US utility provider lookup engine",
	Long:  "Resolves the electric, gas, water, sewer, and internet providers serving a US address from territory polygons, state GIS services, and tabular fallbacks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if eris.Is(err, errTransient) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
