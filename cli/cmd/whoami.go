package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"quickdeploy/cli/style"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user and deployment count",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := client.Me()
		if err != nil {
			return err
		}
		last := style.DimText.Render("never")
		if u.LastDeployedAt != nil {
			last = style.Val.Render(u.LastDeployedAt.Local().Format(time.RFC1123))
		}
		fmt.Printf("  %s %s\n", style.Key.Render("User"), style.Bold.Render(u.Username))
		fmt.Printf("  %s %s\n", style.Key.Render("Deployments"), style.Val.Render(strconv.Itoa(u.Deployments)))
		fmt.Printf("  %s %s\n", style.Key.Render("Last deploy"), last)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
