package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

type scopeFlags struct {
	namespaces []string
	overlaps   bool
	field      string
	strict     bool
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.namespaces, "ns", nil, "namespaces to search (default: all)")
	cmd.Flags().BoolVar(&f.overlaps, "overlaps", false, "keep overlapping matches")
	cmd.Flags().StringVar(&f.field, "field", "", "field name the text came from, used as a context hint")
	cmd.Flags().BoolVar(&f.strict, "strict-context", false, "search only the patterns the field hint selects")
}

func (f *scopeFlags) context() *scan.ContextHint {
	if f.field == "" {
		return nil
	}
	strategy := scan.ContextLoose
	if f.strict {
		strategy = scan.ContextStrict
	}
	return scan.ContextFromFieldName(f.field, strategy)
}

func newFindCmd(c *cli) *cobra.Command {
	var (
		scope scopeFlags
		first    bool
		raw      bool
		classify bool
		regimes  []string
	)

	cmd := &cobra.Command{
		Use:   "find [text|-]",
		Short: "Report sensitive values found in text",
		Long:  "Scans the text given as arguments, or stdin, and prints the matches as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res, err := c.app.engine.Find(text, scan.FindOptions{
				Namespaces:         scope.namespaces,
				AllowOverlaps:      scope.overlaps,
				StopOnFirstMatch:   first,
				IncludeMatchedText: raw,
				Context:            scope.context(),
			})
			if err != nil {
				return err
			}
			if !classify {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			ctx, err := classificationContext(regimes)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), classifiedResult{
				FindResult:     res,
				Classification: scan.NewClassifier().Classify(res.Matches, ctx),
			})
		},
	}

	scope.register(cmd)
	cmd.Flags().BoolVar(&first, "first", false, "stop at the first confirmed match")
	cmd.Flags().BoolVar(&raw, "raw", false, "include matched text for patterns that allow it")
	cmd.Flags().BoolVar(&classify, "classify", false, "add a compliance classification of the matches")
	cmd.Flags().StringSliceVar(&regimes, "data-context", nil, "classification context: healthcare, eu, kr")
	return cmd
}

type classifiedResult struct {
	*scan.FindResult
	Classification *scan.Classification `json:"classification"`
}

func classificationContext(labels []string) (scan.ClassificationContext, error) {
	var ctx scan.ClassificationContext
	for _, l := range labels {
		switch strings.ToLower(strings.TrimSpace(l)) {
		case "healthcare":
			ctx.IsHealthcare = true
		case "eu":
			ctx.IsEUData = true
		case "kr":
			ctx.IsKoreanData = true
		default:
			return ctx, fmt.Errorf("unknown data context %q", l)
		}
	}
	return ctx, nil
}
