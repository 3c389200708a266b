package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Tributary-ai-services/datadetector/pkg/logging"
	"github.com/Tributary-ai-services/datadetector/pkg/reload"
	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

func newWatchCmd(c *cli) *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan stdin line by line while reloading changed pattern files",
		Long: `Reads lines from stdin until EOF and prints one JSON record per line, like
batch. Pattern files under --patterns (or patterns.paths) are watched and the
catalog is rebuilt and swapped in when they change; a broken edit keeps the
previous catalog serving.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if len(a.cfg.Patterns.Paths) == 0 {
				return errors.New("watch needs pattern paths: set --patterns or patterns.paths")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := reload.New(a.handle, a.loadSpecs, a.cfg.Patterns.Paths,
				reload.WithLogger(logging.WithComponent(a.logger, "reload")),
				reload.WithDebounce(a.cfg.Patterns.Debounce),
				reload.WithBuildOptions(a.buildOptions()...),
				reload.OnReload(func(r reload.Result) {
					switch {
					case r.Err != nil:
						fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", r.Err)
					case r.Swapped:
						fmt.Fprintf(cmd.ErrOrStderr(), "reloaded %d patterns (generation %d)\n", r.Patterns, r.Generation)
					}
				}),
			)
			if err != nil {
				return err
			}
			defer w.Close()
			w.Start(ctx)

			lines := make(chan string)
			scanErr := make(chan error, 1)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(cmd.InOrStdin())
				sc.Buffer(make([]byte, 64*1024), maxLineSize)
				for sc.Scan() {
					select {
					case lines <- sc.Text():
					case <-ctx.Done():
						return
					}
				}
				scanErr <- sc.Err()
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for n := 0; ; n++ {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						select {
						case err := <-scanErr:
							return err
						default:
							return nil
						}
					}
					rec := batchRecord{Index: n, ItemID: strconv.Itoa(n + 1)}
					res, err := a.engine.Find(line, scan.FindOptions{
						Namespaces:    scope.namespaces,
						AllowOverlaps: scope.overlaps,
						Context:       scope.context(),
					})
					if err != nil {
						rec.Error = err.Error()
					} else {
						rec.Matches = res.Matches
					}
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
			}
		},
	}

	scope.register(cmd)
	return cmd
}
