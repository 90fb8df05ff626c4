package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sakif/highest-aircraft/internal/model"
)

var leadersCmd = &cobra.Command{
	Use:   "leaders [category]",
	Short: "Print the persisted leaders",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLeaders,
}

func init() {
	rootCmd.AddCommand(leadersCmd)
}

func runLeaders(cmd *cobra.Command, args []string) error {
	categories := model.Categories()
	if len(args) == 1 {
		category, err := categoryArg(args[0])
		if err != nil {
			return err
		}
		categories = []model.Category{category}
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("%-12s  %-4s  %-10s  %-8s  %-6s  %s\n", "CATEGORY", "RANK", "IDENT", "ALTITUDE", "SPEED", "SINCE")
	for _, category := range categories {
		leaders, err := store.ListLeaders(cmd.Context(), category)
		if err != nil {
			return err
		}
		if len(leaders) == 0 {
			fmt.Printf("%-12s  %-4s  %s\n", category, "-", "(none yet)")
			continue
		}
		for _, l := range leaders {
			fmt.Printf("%-12s  %-4d  %-10s  %-8s  %-6s  %s\n",
				category, l.Rank, l.Flight.Ident,
				orDash(l.Flight.Altitude), orDash(l.Flight.Groundspeed),
				l.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func orDash(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
