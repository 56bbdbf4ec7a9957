package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tidings",
		Short: "Collect daily content and publish it on a fixed timetable",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(collectCmd())
	root.AddCommand(publishCmd())
	root.AddCommand(statusCmd())

	return root
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the daemon with the daily schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func collectCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the collection job once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(date)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "batch date YYYY-MM-DD (default: yesterday)")
	return cmd
}

func publishCmd() *cobra.Command {
	var (
		date     string
		priority int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the next due item, or a specific one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(date, priority)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "batch date YYYY-MM-DD (default: yesterday)")
	cmd.Flags().IntVar(&priority, "priority", 0, "force-publish the item with this priority, ignoring its slot")
	return cmd
}

func statusCmd() *cobra.Command {
	var (
		date       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show publication progress for a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(date, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "batch date YYYY-MM-DD (default: yesterday)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
