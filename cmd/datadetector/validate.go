package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errNotValid = errors.New("text does not match pattern")

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <namespace/id> [text|-]",
		Short: "Check that text as a whole matches one pattern",
		Long:  "Prints the validation result as JSON and exits non-zero when the text is not valid.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[1:])
			if err != nil {
				return err
			}
			res, err := c.app.engine.Validate(text, args[0])
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return errNotValid
			}
			return nil
		},
	}
}
