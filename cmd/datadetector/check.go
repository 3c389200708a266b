package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run every pattern's declared examples",
		Long: `Builds the catalog and runs each pattern's examples: match examples must be
detected and nomatch examples must not be. Specs that failed to compile are
reported too. Exits non-zero on any failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := c.app.handle.Current()
			out := cmd.OutOrStdout()

			skipped := reg.Skipped()
			for _, pe := range skipped {
				fmt.Fprintf(out, "SKIP  %v\n", pe)
			}

			failures := reg.CheckExamples()
			for _, f := range failures {
				want := "expected match"
				if !f.WantMatch {
					want = "unexpected match"
				}
				fmt.Fprintf(out, "FAIL  %s: %s for %q\n", f.PatternID, want, f.Example)
			}

			fmt.Fprintf(out, "%d patterns, %d skipped, %d example failures\n",
				reg.Len(), len(skipped), len(failures))

			if len(skipped) > 0 || len(failures) > 0 {
				return fmt.Errorf("catalog check failed")
			}
			return nil
		},
	}
}
