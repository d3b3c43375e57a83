package main

import "github.com/spf13/cobra"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("kotae version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
