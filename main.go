package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	problem   string
	workspace string
	sessionID string

	rootCmd = &cobra.Command{
		Use:   "hrm",
		Short: "Hierarchical reasoning server",
		Long: `hrm serves the hierarchical reasoning tool over HTTP and can run a single
automatic reasoning pass from the command line.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}

	reasonCmd = &cobra.Command{
		Use:   "reason",
		Short: "Run one automatic reasoning pass and print its trace",
		RunE:  runReason,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Delete every session idle for longer than the TTL",
		RunE:  runSweep,
	}
)

func init() {
	reasonCmd.Flags().StringVarP(&problem, "problem", "p", "", "problem statement to reason about")
	reasonCmd.Flags().StringVarP(&workspace, "workspace", "w", "", "project directory used for framework detection")
	reasonCmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")

	rootCmd.AddCommand(serveCmd, reasonCmd, sweepCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
