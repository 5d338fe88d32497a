package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bugspot/bugspot/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		applied, err := store.AppliedMigrations()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Database is at migration %d (%d applied)\n", latest(applied), len(applied))
		return nil
	},
}

var (
	userGitHubID string
	userName     string
	userEmail    string
	userTier     int

	formUserID   int64
	formName     string
	formRepo     string
	formDiscord  string
	formPrompt   string
	formHideLink bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage form owners",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a form owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := store.CreateUser(context.Background(), storage.User{
			GitHubID:         userGitHubID,
			Username:         userName,
			Email:            userEmail,
			SubscriptionTier: userTier,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Created user %d (%s)\n", u.ID, u.Username)
		return nil
	},
}

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Manage report forms",
}

var formAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a report form bound to a repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := store.CreateForm(context.Background(), storage.Form{
			UserID:         formUserID,
			Name:           formName,
			GitHubRepo:     formRepo,
			DiscordWebhook: formDiscord,
			ShowIssueLink:  !formHideLink,
			CustomPrompt:   formPrompt,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Created form %s for %s\n", f.ID, f.GitHubRepo)
		return nil
	},
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Manage monthly report quotas",
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset every owner's monthly report count",
	Long:  "Reset every owner's monthly report count. Run this from a monthly scheduler.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.ResetReportAmounts(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("✓ Reset report counts for %d users\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, userCmd, formCmd, quotaCmd)
	userCmd.AddCommand(userAddCmd)
	formCmd.AddCommand(formAddCmd)
	quotaCmd.AddCommand(quotaResetCmd)

	userAddCmd.Flags().StringVar(&userGitHubID, "github-id", "", "Numeric GitHub account ID")
	userAddCmd.Flags().StringVar(&userName, "username", "", "GitHub login")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Contact email")
	userAddCmd.Flags().IntVar(&userTier, "tier", 0, "Subscription tier (0 base, 1 pro, 2 enterprise)")
	userAddCmd.MarkFlagRequired("github-id")
	userAddCmd.MarkFlagRequired("username")
	userAddCmd.MarkFlagRequired("email")

	formAddCmd.Flags().Int64Var(&formUserID, "user", 0, "Owner user ID")
	formAddCmd.Flags().StringVar(&formName, "name", "", "Form name")
	formAddCmd.Flags().StringVar(&formRepo, "repo", "", "Target repository (owner/name)")
	formAddCmd.Flags().StringVar(&formDiscord, "discord-webhook", "", "Discord webhook notified on new issues")
	formAddCmd.Flags().StringVar(&formPrompt, "prompt", "", "Extra triage guidelines for this form")
	formAddCmd.Flags().BoolVar(&formHideLink, "hide-issue-link", false, "Omit the issue link from reporter emails")
	formAddCmd.MarkFlagRequired("user")
	formAddCmd.MarkFlagRequired("name")
}

func latest(versions []int) int {
	top := 0
	for _, v := range versions {
		top = max(top, v)
	}
	return top
}
