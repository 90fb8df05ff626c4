package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize <category>",
	Short: "Store an X session for a category (interactive, once)",
	Long: `Run the X OAuth2 consent flow for a category and store the resulting
session, so scheduled runs never wait on a browser. Prints the consent URL,
then waits on the callback address until the browser is redirected back.
Does nothing if the category already has a session.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthorize,
}

func init() {
	rootCmd.AddCommand(authorizeCmd)
}

func runAuthorize(cmd *cobra.Command, args []string) error {
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

	has, err := broker.HasSession(ctx, category)
	if err != nil {
		return err
	}
	if has {
		fmt.Printf("%s is already authorized.\n", category)
		return nil
	}

	if _, err := broker.Authorize(ctx, category); err != nil {
		return err
	}
	fmt.Printf("%s authorized; session stored.\n", category)
	return nil
}
