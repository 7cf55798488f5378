package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaifeng/proxy.pac/internal/engine"
	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/parser"
)

var checksFile string

// errChecksFailed is returned when at least one self-test case fails.
var errChecksFailed = errors.New("self-test failed")

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run self-test cases against the loaded rules",
		Long: `check evaluates kind,input,expected cases and prints one OK: or Failed: line
	per case. Without --cases the built-in cases are used, which expect the
	built-in rules.`,
		RunE: runCheck,
	}
	cmd.Flags().StringVar(&checksFile, "cases", "", "CSV file with kind,input,expected columns")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	evaluator, err := buildEvaluator()
	if err != nil {
		return err
	}

	cases := engine.BuiltinChecks()
	if checksFile != "" {
		cases, err = loadChecks(checksFile)
		if err != nil {
			slog.Error("Failed to load check cases", "path", checksFile, "error", err)
			return err
		}
	}

	results, failed := engine.RunChecks(evaluator, cases)
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintln(out, r.String())
	}
	slog.Info("Self-test finished", "cases", len(results), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d cases", errChecksFailed, failed, len(results))
	}
	return nil
}

func loadChecks(path string) ([]model.CheckCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parser.ParseCheckCases(f)
}
