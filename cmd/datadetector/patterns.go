package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

func newPatternsCmd(c *cli) *cobra.Command {
	var (
		namespace string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List the loaded patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := c.app.handle.Current()

			list := reg.Patterns()
			if namespace != "" {
				var err error
				if list, err = reg.ByNamespace(namespace); err != nil {
					return err
				}
			}

			if asJSON {
				rows := make([]patternRow, 0, len(list))
				for _, p := range list {
					rows = append(rows, newPatternRow(p))
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tSEVERITY\tPRIORITY\tVERIFY\tACTION")
			for _, p := range list {
				verification := p.VerificationName()
				if verification == "" {
					verification = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					p.FullID(), p.Category(), p.Severity(), p.Priority(), verification, p.Action())
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&namespace, "ns", "", "only list this namespace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

type patternRow struct {
	ID           string        `json:"id"`
	Category     scan.Category `json:"category"`
	Severity     scan.Severity `json:"severity"`
	Priority     int           `json:"priority"`
	Verification string        `json:"verification,omitempty"`
	Action       scan.Action   `json:"action_on_match"`
	StoreRaw     bool          `json:"store_raw"`
	Description  string        `json:"description,omitempty"`
	Pattern      string        `json:"pattern"`
}

func newPatternRow(p *scan.Pattern) patternRow {
	return patternRow{
		ID:           p.FullID(),
		Category:     p.Category(),
		Severity:     p.Severity(),
		Priority:     p.Priority(),
		Verification: p.VerificationName(),
		Action:       p.Action(),
		StoreRaw:     p.StoreRaw(),
		Description:  p.Description(),
		Pattern:      p.Source(),
	}
}
