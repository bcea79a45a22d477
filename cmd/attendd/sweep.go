package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildRuntime(cmd, nil)
		if err != nil {
			return err
		}
		defer deps.Close()

		res, err := deps.engine.Sweep(cmd.Context())
		if res != nil {
			for _, id := range res.Closed {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			deps.logger.Info("sweep complete", "closed", len(res.Closed), "flushed", res.Flushed, "recovered", res.Recovered)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
