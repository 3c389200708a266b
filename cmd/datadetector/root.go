package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries the flag/env bindings and the lazily built app shared by
// every subcommand of one invocation
type cli struct {
	v   *viper.Viper
	app *app
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "datadetector",
		Short: "Detect and redact sensitive data in text",
		Long: `datadetector finds personal and secret data in text using declarative
pattern catalogs.

It ships with built-in catalogs for the comm, us, kr and eu namespaces and
loads additional YAML catalogs from files, directories or globs. Matches
can be reported, validated, or redacted by mask, hash, token or synthetic
replacement.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(c.v)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "configuration file (default: built-in defaults)")
	flags.StringSlice("patterns", nil, "extra pattern files, directories or globs")
	flags.Bool("no-defaults", false, "do not load the embedded pattern catalog")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")

	_ = c.v.BindPFlag("config", flags.Lookup("config"))
	_ = c.v.BindPFlag("patterns", flags.Lookup("patterns"))
	_ = c.v.BindPFlag("no_defaults", flags.Lookup("no-defaults"))
	_ = c.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("log_format", flags.Lookup("log-format"))

	// DATADETECTOR_CONFIG, DATADETECTOR_LOG_LEVEL, ...
	c.v.SetEnvPrefix("DATADETECTOR")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		newFindCmd(c),
		newRedactCmd(c),
		newDetokenizeCmd(c),
		newValidateCmd(c),
		newPatternsCmd(c),
		newCheckCmd(c),
		newBatchCmd(c),
		newWatchCmd(c),
	)

	return root, c
}

func (c *cli) close() {
	if c.app != nil {
		c.app.close()
	}
}

// readInput joins args into the text to scan; no args or "-" reads stdin
// with one trailing newline removed
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(text, "\r"), nil
}
