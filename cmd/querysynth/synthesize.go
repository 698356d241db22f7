package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/querysynth/orchestration"
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize [request]",
	Short: "Synthesize and verify a SQL query for a data request",
	Example: `  querysynth synthesize --driver postgres --dsn "$DATABASE_URL" "total complaints this month"
  querysynth synthesize --mode full --max-fix-attempts 5 "active users per region"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSynthesize,
}

var (
	synthOutput  string
	synthSQLOnly bool
	withProgress bool
)

func init() {
	synthesizeCmd.Flags().StringVarP(&synthOutput, "output", "o", "json", "output format: json or text")
	synthesizeCmd.Flags().BoolVar(&synthSQLOnly, "sql-only", false, "print only the verified query")
	synthesizeCmd.Flags().BoolVar(&withProgress, "progress", false, "print progress events to stderr")
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	o, reporter, err := rt.orchestrator()
	if err != nil {
		return err
	}
	if reporter != nil {
		defer reporter.Close()
	}
	if withProgress {
		stderr := cmd.ErrOrStderr()
		o.OnProgress(func(ev orchestration.ProgressEvent) {
			line := fmt.Sprintf("[%d] %-10s %s", ev.Iteration, ev.State, ev.Action)
			if ev.ErrorSummary != "" && ev.State == orchestration.StateRepairing {
				line += "  (" + ev.ErrorSummary + ")"
			}
			fmt.Fprintln(stderr, line)
		})
	}

	result, err := o.Synthesize(ctx, strings.Join(args, " "), flags.dataSource)
	if err != nil {
		return err
	}
	if err := printResult(cmd, result); err != nil {
		return err
	}
	if result.Status != orchestration.StateDone {
		return fmt.Errorf("synthesis %s: %s", strings.ToLower(string(result.Status)), result.Message)
	}
	return nil
}

func printResult(cmd *cobra.Command, result *orchestration.SynthesisResult) error {
	out := cmd.OutOrStdout()
	if synthSQLOnly {
		if result.Status == orchestration.StateDone {
			fmt.Fprintln(out, result.Query)
		}
		return nil
	}

	switch synthOutput {
	case "text":
		fmt.Fprintf(out, "Status:     %s\n", result.Status)
		fmt.Fprintf(out, "Attempts:   %d repairs, %d executions, %d iterations\n",
			result.AttemptsUsed, result.ExecutionAttempts, result.Iterations)
		fmt.Fprintf(out, "Message:    %s\n", result.Message)
		if result.Query != "" {
			fmt.Fprintf(out, "\n%s\n", result.Query)
		}
		for _, issue := range result.Issues {
			fmt.Fprintf(out, "  - [%s] %s\n", issue.Category, issue.Message)
		}
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		return fmt.Errorf("unknown output format %q", synthOutput)
	}
}
