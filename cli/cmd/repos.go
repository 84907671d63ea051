package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quickdeploy/cli/style"
)

var reposCmd = &cobra.Command{
	Use:     "repos",
	Short:   "List repositories you can deploy",
	Aliases: []string{"ls"},
	RunE:    runRepos,
}

func init() {
	rootCmd.AddCommand(reposCmd)
}

func runRepos(cmd *cobra.Command, args []string) error {
	repos, err := client.Repos()
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		fmt.Println(style.DimText.Render("No repositories visible to your GitHub token."))
		return nil
	}

	for _, r := range repos {
		visibility := style.DimText.Render("public")
		if r.Private {
			visibility = style.Warning.Render("private")
		}
		line := fmt.Sprintf("  %-40s %s", style.Bold.Render(r.FullName), visibility)
		if r.Language != "" {
			line += "  " + style.Val.Render(r.Language)
		}
		if !r.UpdatedAt.IsZero() {
			line += "  " + style.DimText.Render(r.UpdatedAt.Local().Format(time.DateOnly))
		}
		fmt.Println(line)
	}
	fmt.Println()
	fmt.Println(style.DimText.Render("Deploy one with: qd deploy <owner/name>"))
	return nil
}
