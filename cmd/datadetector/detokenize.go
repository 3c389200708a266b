package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tributary-ai-services/datadetector/pkg/tokenize"
)

func newDetokenizeCmd(c *cli) *cobra.Command {
	var (
		tokensFile string
		mapID      string
		tolerate   bool
	)

	cmd := &cobra.Command{
		Use:   "detokenize [text|-]",
		Short: "Restore values replaced by the tokenize strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			var m *tokenize.TokenMap
			switch {
			case tokensFile != "":
				data, err := os.ReadFile(tokensFile)
				if err != nil {
					return fmt.Errorf("reading token map: %w", err)
				}
				m, err = tokenize.Decode(strings.TrimSpace(string(data)), a.tokenSigner())
				if err != nil {
					return err
				}
			case mapID != "":
				m, err = a.tokenStore().Get(cmd.Context(), mapID)
				if err != nil {
					return err
				}
			default:
				return errors.New("one of --tokens-file or --map-id is required")
			}

			var opts []tokenize.DetokenizeOption
			if tolerate || a.cfg.Redaction.TolerateMissingTokens {
				opts = append(opts, tokenize.TolerateMissing())
			}
			restored, err := tokenize.Detokenize(text, m, opts...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), restored)
			return err
		},
	}

	cmd.Flags().StringVar(&tokensFile, "tokens-file", "", "encoded token map written by redact --tokens-out")
	cmd.Flags().StringVar(&mapID, "map-id", "", "id of a token map in the token store")
	cmd.Flags().BoolVar(&tolerate, "tolerate-missing", false, "leave unknown placeholders in place")
	return cmd
}
