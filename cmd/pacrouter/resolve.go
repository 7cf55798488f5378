package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var explain bool

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve HOST...",
		Short: "Print the proxy directive for each host",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runResolve,
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "Also print the stage and rule that decided each host")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	evaluator, err := buildEvaluator()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, host := range args {
		d := evaluator.Evaluate(host)
		if !explain {
			fmt.Fprintf(out, "%s\t%s\n", host, d.Directive)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\tstage=%s rule=%s", host, d.Directive, d.Stage, d.Rule)
		if d.ResolvedIP != "" {
			fmt.Fprintf(out, " resolved_ip=%s", d.ResolvedIP)
		}
		fmt.Fprintln(out)
	}
	return nil
}
