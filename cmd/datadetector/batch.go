package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Tributary-ai-services/datadetector/pkg/pipeline"
	"github.com/Tributary-ai-services/datadetector/pkg/scan"
	"github.com/Tributary-ai-services/datadetector/pkg/stream"
)

const maxLineSize = 4 << 20

// batchRecord is one output line of the batch command
type batchRecord struct {
	Index    int          `json:"index"`
	ItemID   string       `json:"item_id"`
	Error    string       `json:"error,omitempty"`
	Matches  []scan.Match `json:"matches,omitempty"`
	Redacted *string      `json:"redacted,omitempty"`
}

func newBatchCmd(c *cli) *cobra.Command {
	var (
		scope       scopeFlags
		concurrency int
		redact      bool
		strategy    string
		raw         bool
		streamFlag  bool
		streamLocal bool
	)

	cmd := &cobra.Command{
		Use:   "batch [file|-]",
		Short: "Scan or redact every line of a file concurrently",
		Long: `Treats each input line as one item, processes items concurrently and prints
one JSON record per item in input order. With streaming enabled, findings
are published to Kafka as they are produced. --stream-local, or a config
without brokers, writes the routed findings to stderr instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			items, err := readItems(in)
			if err != nil {
				return err
			}

			pcfg := pipeline.NewProcessorConfig(a.cfg)
			opts := []pipeline.ProcessorOption{
				pipeline.WithLogger(a.logger),
				pipeline.WithConfig(pcfg),
			}
			if streamFlag || streamLocal || a.cfg.Streaming.Enabled {
				var s stream.Streamer
				if streamLocal || len(a.cfg.Streaming.Kafka.Brokers) == 0 {
					s = a.localStreamer(cmd.ErrOrStderr())
				} else if s, err = a.streamer(); err != nil {
					return err
				}
				pcfg.StreamFindings = true
				opts = append(opts, pipeline.WithStreamer(s))
				if key := a.cfg.TokenStore.SigningKey; key != "" {
					opts = append(opts, pipeline.WithFindingKey([]byte(key)))
				}
			}
			proc := pipeline.NewProcessor(a.engine, opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if redact {
				st, err := scan.ParseStrategy(strategyOr(strategy, a.cfg.Redaction.Strategy))
				if err != nil {
					return err
				}
				res, err := proc.RedactBatch(ctx, items, concurrency, scan.RedactOptions{
					Namespaces:    scope.namespaces,
					Strategy:      st,
					AllowOverlaps: scope.overlaps,
					Context:       scope.context(),
				})
				if res != nil {
					if werr := writeRedactRecords(cmd.OutOrStdout(), res); werr != nil {
						return werr
					}
					return batchError(ctx, err, res.Metrics)
				}
				return err
			}

			res, err := proc.ScanBatch(ctx, items, concurrency, scan.FindOptions{
				Namespaces:         scope.namespaces,
				AllowOverlaps:      scope.overlaps,
				IncludeMatchedText: raw,
				Context:            scope.context(),
			})
			if res != nil {
				if werr := writeScanRecords(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
				return batchError(ctx, err, res.Metrics)
			}
			return err
		},
	}

	scope.register(cmd)
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "maximum items in flight (default from config)")
	cmd.Flags().BoolVar(&redact, "redact", false, "redact instead of reporting matches")
	cmd.Flags().StringVar(&strategy, "strategy", "", "redaction strategy when --redact is set")
	cmd.Flags().BoolVar(&raw, "raw", false, "include matched text for patterns that allow it")
	cmd.Flags().BoolVar(&streamFlag, "stream", false, "publish findings to Kafka")
	cmd.Flags().BoolVar(&streamLocal, "stream-local", false, "write routed findings to stderr instead of Kafka")
	return cmd
}

func strategyOr(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func readItems(r io.Reader) ([]pipeline.Item, error) {
	var items []pipeline.Item
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for line := 1; sc.Scan(); line++ {
		items = append(items, pipeline.Item{ID: strconv.Itoa(line), Text: sc.Text()})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return items, nil
}

func writeScanRecords(w io.Writer, res *pipeline.BatchResult) error {
	enc := json.NewEncoder(w)
	for _, item := range res.Items {
		rec := batchRecord{Index: item.Index, ItemID: item.ItemID}
		if item.Err != nil {
			rec.Error = item.Err.Error()
		} else {
			rec.Matches = item.Result.Matches
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeRedactRecords(w io.Writer, res *pipeline.RedactBatchResult) error {
	enc := json.NewEncoder(w)
	for _, item := range res.Items {
		rec := batchRecord{Index: item.Index, ItemID: item.ItemID}
		if item.Err != nil {
			rec.Error = item.Err.Error()
		} else {
			rec.Matches = item.Result.Matches
			rec.Redacted = &item.Result.Redacted
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// batchError turns per-item failures into the command's exit status
func batchError(ctx context.Context, err error, m pipeline.BatchMetrics) error {
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.Failed > 0 || m.Cancelled > 0 {
		return fmt.Errorf("%d of %d items failed", m.Failed+m.Cancelled, m.Items)
	}
	return nil
}
