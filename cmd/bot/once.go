package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once <category>",
	Short: "Run a single cycle for one category and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateForRun(); err != nil {
		return err
	}
	category, err := categoryArg(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := cycleContext(cmd.Context())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	broker, err := newBroker(cfg, store)
	if err != nil {
		return err
	}
	runner, err := newRunner(cfg, store, broker)
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, category)
	if res != nil {
		fmt.Printf("%-10s  %s\n", "run", res.RunID)
		fmt.Printf("%-10s  %s\n", "outcome", res.Outcome)
		fmt.Printf("%-10s  %s\n", "leader", res.Leader.Ident)
		if res.Previous != nil {
			fmt.Printf("%-10s  %s\n", "previous", res.Previous.Ident)
		}
		fmt.Printf("%-10s  %d (after %d searches)\n", "threshold", res.Threshold, res.Attempts)
	}
	return err
}
