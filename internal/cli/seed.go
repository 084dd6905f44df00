package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracklight-systems/tracklight/internal/seeder"
)

var (
	seedTarget   string
	seedCount    int
	seedTenants  int
	seedInterval time.Duration
	seedSeed     int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic events against a collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		gen := seeder.New(seeder.Config{
			Tenants: seedTenants,
			Seed:    seedSeed,
		})
		runner := seeder.NewRunner(gen, seedTarget)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sent, err := runner.Run(ctx, seedCount, seedInterval)
		fmt.Printf("sent %d/%d events to %s\n", sent, seedCount, seedTarget)
		return err
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedTarget, "target", "http://localhost:8098", "collector base URL")
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of events to send")
	seedCmd.Flags().IntVar(&seedTenants, "tenants", 3, "size of the synthetic tenant pool")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 10*time.Millisecond, "pause between events")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed (0 = time-based)")

	rootCmd.AddCommand(seedCmd)
}
