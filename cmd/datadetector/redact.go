package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tributary-ai-services/datadetector/pkg/scan"
	"github.com/Tributary-ai-services/datadetector/pkg/tokenize"
)

func newRedactCmd(c *cli) *cobra.Command {
	var (
		scope     scopeFlags
		strategy  string
		asJSON    bool
		tokensOut string
		store     bool
	)

	cmd := &cobra.Command{
		Use:   "redact [text|-]",
		Short: "Replace sensitive values in text",
		Long: `Redacts the text given as arguments, or stdin, and prints the result.

With --strategy tokenize the token map can be written to a file (--tokens-out)
or saved in the configured token store (--store) for a later detokenize.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if strategy == "" {
				strategy = a.cfg.Redaction.Strategy
			}
			st, err := scan.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			res, err := a.engine.Redact(text, scan.RedactOptions{
				Namespaces:    scope.namespaces,
				Strategy:      st,
				AllowOverlaps: scope.overlaps,
				Context:       scope.context(),
			})
			if err != nil {
				return err
			}

			if res.Tokens != nil && res.Tokens.Len() > 0 {
				if err := saveTokens(cmd, a, res.Tokens, tokensOut, store); err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Redacted)
			return err
		},
	}

	scope.register(cmd)
	cmd.Flags().StringVar(&strategy, "strategy", "", "mask, hash, tokenize or synthetic (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full redaction result as JSON")
	cmd.Flags().StringVar(&tokensOut, "tokens-out", "", "write the encoded token map to this file")
	cmd.Flags().BoolVar(&store, "store", false, "save the token map in the token store and print its id on stderr")
	return cmd
}

func saveTokens(cmd *cobra.Command, a *app, m *tokenize.TokenMap, path string, store bool) error {
	if path != "" {
		encoded, err := tokenize.Encode(m, a.tokenSigner())
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
			return fmt.Errorf("writing token map: %w", err)
		}
	}
	if store {
		if err := a.tokenStore().Put(cmd.Context(), m, a.cfg.TokenStore.TTL); err != nil {
			return fmt.Errorf("storing token map: %w", err)
		}
		a.logger.Info("token map stored",
			zap.String("map_id", m.ID),
			zap.Int("tokens", m.Len()),
			zap.String("digest", m.Digest()))
		fmt.Fprintf(cmd.ErrOrStderr(), "token map: %s\n", m.ID)
	}
	return nil
}
