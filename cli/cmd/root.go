package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"quickdeploy/cli/api"
)

var (
	apiURL string
	token  string
	client *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "qd",
	Short: "Deploy GitHub repositories to an S3 static website",
	Long: `qd talks to a QuickDeploy server: it fetches a repository, builds it if it
has a build script, and replaces the website bucket with the result.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = api.New(apiURL, token)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("QD_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "QuickDeploy API URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("QD_TOKEN"), "session token (default $QD_TOKEN)")
}
