package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"quickdeploy/cli/style"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check health of the backing services",
	Aliases: []string{"doctor", "h"},
	RunE:    runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

var serviceNames = map[string]string{
	"postgres": "PostgreSQL",
	"s3":       "S3 bucket",
	"redis":    "Redis lease",
}

func runHealth(cmd *cobra.Command, args []string) error {
	h, err := client.Health()
	if err != nil {
		fmt.Println(style.ErrorBox.Render("Cannot reach QuickDeploy API at " + apiURL))
		return err
	}

	fmt.Println(style.Banner.Render("▲ QUICKDEPLOY HEALTH"))
	fmt.Println()

	for _, s := range h.Services {
		name := serviceNames[s.Name]
		if name == "" {
			name = s.Name
		}

		var label string
		switch s.Status {
		case "up":
			label = style.Healthy.Render("up")
		case "down":
			label = style.Unhealthy.Render("down")
		default:
			label = style.Warning.Render(s.Status)
		}
		if s.Details != "" {
			label += " " + style.DimText.Render(s.Details)
		}

		fmt.Printf("  %s  %-14s %s\n", style.ServiceDot(s.Status), style.Bold.Render(name), label)
	}

	fmt.Println()

	if h.Status == "healthy" {
		fmt.Println(style.SuccessBox.Render("All services healthy"))
	} else {
		fmt.Println(style.ErrorBox.Render("Some services are down"))
	}
	return nil
}
