package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and clean up extraction sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.List(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-11s  created %s\n",
				s.Token, s.State, s.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sessions idle past their TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.DeleteExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired session(s)\n", n)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)
	rootCmd.AddCommand(sessionsCmd)
}
