package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bugspot/bugspot/internal/lifecycle"
)

var (
	cleanupRepo  string
	cleanupIssue int
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Finalize ledger entries for a closed issue or a removed repository",
	Long: `Finalize ledger entries the same way the GitHub webhook does: mark them
closed, email reporters, delete their media and drop the entries.
Without --issue every entry for the repository is cleaned up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		media, err := newMediaStore(cfg)
		if err != nil && verbose {
			fmt.Printf("ℹ Media storage disabled: %v\n", err)
		}
		mailer, err := newMailer(cfg)
		if err != nil && verbose {
			fmt.Printf("ℹ Email disabled: %v\n", err)
		}

		var issue *int
		if cmd.Flags().Changed("issue") {
			issue = &cleanupIssue
		}

		cleaner := lifecycle.NewCleaner(store, objectDeleter(media), reporterMailer(mailer))
		n, err := cleaner.CleanupIssue(context.Background(), cleanupRepo, issue)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Cleaned up %d reports for %s\n", n, cleanupRepo)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().StringVar(&cleanupRepo, "repo", "", "Repository (owner/name)")
	cleanupCmd.Flags().IntVar(&cleanupIssue, "issue", 0, "Issue number")
	cleanupCmd.MarkFlagRequired("repo")
}
