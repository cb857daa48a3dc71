package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/utility-lookup/internal/model"
)

var lookupNoCache bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <address>",
	Short: "Resolve utility providers for one address",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("lookup"); err != nil {
			return err
		}
		address := strings.Join(args, " ")

		env, err := initEngine(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		if !env.Engine.Loaded() {
			return eris.Wrap(errTransient, "engine not ready")
		}

		result := env.Engine.Lookup(cmd.Context(), address, !lookupNoCache)
		printResult(cmd, result)
		return nil
	},
}

func printResult(cmd *cobra.Command, result *model.LookupResult) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}

func init() {
	lookupCmd.Flags().BoolVar(&lookupNoCache, "no-cache", false, "bypass the result cache")
	rootCmd.AddCommand(lookupCmd)
}
