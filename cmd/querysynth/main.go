package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	querysynth "github.com/itsneelabh/querysynth"
)

var rootCmd = &cobra.Command{
	Use:   "querysynth",
	Short: "QuerySynth - agent-driven SQL query synthesis",
	Long: `QuerySynth turns a natural-language data request into a read-only SQL query
that has been executed and verified against the target database.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "querysynth %s (commit %s, built %s)\n",
			querysynth.Version, querysynth.GitCommit, querysynth.BuildDate)
	},
}

func init() {
	bindGlobalFlags(rootCmd)

	rootCmd.AddCommand(synthesizeCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
