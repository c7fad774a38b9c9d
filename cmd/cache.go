package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/licitatech/match-cli/internal/cache"
)

var cacheClearModel string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Embedding cache administration",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show embedding cache occupancy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := cache.New(st, cfg.Cache.TTL()).Stats(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("embedding cache stats",
			zap.Int64("total_entries", stats.TotalEntries),
			zap.Int64("total_accesses", stats.TotalAccesses),
			zap.Any("by_model", stats.ByModel),
		)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Evict embedding cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := cache.New(st, cfg.Cache.TTL()).Clear(ctx, cacheClearModel)
		if err != nil {
			return err
		}

		zap.L().Info("embedding cache cleared",
			zap.Int("evicted", n),
			zap.String("model", cacheClearModel),
		)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearModel, "model", "", "only clear entries for this model (default: all)")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
