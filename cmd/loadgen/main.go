package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	opts := defaultOptions()
	cmd := &cobra.Command{
		Use:          "loadgen",
		Short:        "Fire checkout-completed events at the api-server and report throughput",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			report.Print(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.URL, "url", opts.URL, "checkout endpoint")
	cmd.Flags().IntVarP(&opts.Requests, "requests", "n", opts.Requests, "total requests")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", opts.Concurrency, "requests in flight")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", opts.Timeout, "per-request timeout")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
