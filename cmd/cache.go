package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/utility-lookup/internal/rescache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Result cache maintenance",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer cache.Close()

		cleared, err := cache.ClearExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d expired entries\n", cleared)
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <address>",
	Short: "Drop the cached result for one address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer cache.Close()

		if err := cache.Invalidate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "invalidated")
		return nil
	},
}

var cacheSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Report the number of cached results",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer cache.Close()

		n, err := cache.Size(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d entries\n", n)
		return nil
	},
}

func openCache(cmd *cobra.Command) (*rescache.Cache, error) {
	return rescache.Open(cmd.Context(), cfg.Cache.Path,
		rescache.WithTTL(time.Duration(cfg.Cache.TTLDays)*24*time.Hour))
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheInvalidateCmd, cacheSizeCmd)
	rootCmd.AddCommand(cacheCmd)
}
