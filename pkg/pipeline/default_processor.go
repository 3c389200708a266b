package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Tributary-ai-services/datadetector/pkg/scan"
	"github.com/Tributary-ai-services/datadetector/pkg/stream"
)

// Processor schedules engine calls over batches. It holds no per-batch
// state and may be shared.
type Processor struct {
	engine   Engine
	streamer stream.Streamer
	logger   *zap.Logger
	config   *ProcessorConfig
	limiter  *rate.Limiter

	findingKey []byte
}

// ProcessorOption is a functional option for configuring a Processor.
type ProcessorOption func(*Processor)

// WithStreamer sets the streamer findings are published to.
func WithStreamer(s stream.Streamer) ProcessorOption {
	return func(p *Processor) {
		p.streamer = s
	}
}

// WithFindingKey keys the value digests of streamed findings.
func WithFindingKey(key []byte) ProcessorOption {
	return func(p *Processor) {
		p.findingKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithConfig sets the processor configuration.
func WithConfig(cfg *ProcessorConfig) ProcessorOption {
	return func(p *Processor) {
		if cfg != nil {
			p.config = cfg
		}
	}
}

// NewProcessor creates a Processor around engine. All options are optional.
func NewProcessor(engine Engine, opts ...ProcessorOption) *Processor {
	p := &Processor{
		engine: engine,
		logger: zap.NewNop(),
		config: DefaultProcessorConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.config.RatePerSecond > 0 {
		burst := p.config.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(p.config.RatePerSecond), burst)
	}
	return p
}

// ScanBatch runs Find over every item with at most maxConcurrency calls in
// flight. Results are in input order. A failing item does not affect its
// siblings.
//
// Cancelling ctx stops dispatch; items already running complete and keep
// their results, the rest report the context error. The returned error is
// non-nil only in that case, and the result is populated either way.
func (p *Processor) ScanBatch(ctx context.Context, items []Item, maxConcurrency int, opts scan.FindOptions) (*BatchResult, error) {
	run, err := runBatch(ctx, p, "scan batch complete", items, maxConcurrency, false,
		func(item Item) (*scan.FindResult, []scan.Match, error) {
			o := opts
			if item.Context != nil {
				o.Context = item.Context
			}
			found, err := p.engine.Find(item.Text, o)
			if err != nil {
				return nil, nil, err
			}
			return found, found.Matches, nil
		})

	out := &BatchResult{BatchID: run.batchID, Items: make([]ItemResult, len(items)), Metrics: run.metrics}
	for i, o := range run.outcomes {
		out.Items[i] = ItemResult{Index: i, ItemID: o.itemID, Result: o.result, Err: o.err}
	}
	return out, err
}

// RedactBatch runs Redact over every item with the scheduling of ScanBatch.
func (p *Processor) RedactBatch(ctx context.Context, items []Item, maxConcurrency int, opts scan.RedactOptions) (*RedactBatchResult, error) {
	run, err := runBatch(ctx, p, "redact batch complete", items, maxConcurrency, true,
		func(item Item) (*scan.RedactionResult, []scan.Match, error) {
			o := opts
			if item.Context != nil {
				o.Context = item.Context
			}
			redacted, err := p.engine.Redact(item.Text, o)
			if err != nil {
				return nil, nil, err
			}
			return redacted, redacted.Matches, nil
		})

	out := &RedactBatchResult{BatchID: run.batchID, Items: make([]RedactItemResult, len(items)), Metrics: run.metrics}
	for i, o := range run.outcomes {
		out.Items[i] = RedactItemResult{Index: i, ItemID: o.itemID, Result: o.result, Err: o.err}
	}
	return out, err
}

// outcome is the result of one item, whichever engine call produced it
type outcome[R any] struct {
	itemID  string
	result  R
	matches int
	err     error
}

type batchRun[R any] struct {
	batchID  string
	outcomes []outcome[R]
	metrics  BatchMetrics
}

// runBatch is the scheduling shared by every batch kind: input checks,
// dispatch, publishing, filling in undispatched items and metrics.
func runBatch[R any](
	ctx context.Context,
	p *Processor,
	msg string,
	items []Item,
	maxConcurrency int,
	redacted bool,
	call func(Item) (R, []scan.Match, error),
) (*batchRun[R], error) {
	run := &batchRun[R]{
		batchID:  uuid.NewString(),
		outcomes: make([]outcome[R], len(items)),
	}

	start := time.Now()
	dispatched, err := p.dispatch(ctx, len(items), maxConcurrency, func(i int) {
		item := items[i]
		o := outcome[R]{itemID: itemID(item, i)}
		defer func() { run.outcomes[i] = o }()

		if !utf8.ValidString(item.Text) {
			o.err = fmt.Errorf("item %s: %w", o.itemID, ErrMalformedInput)
			return
		}
		result, matches, err := call(item)
		if err != nil {
			o.err = fmt.Errorf("item %s: %w", o.itemID, err)
			return
		}
		o.result = result
		o.matches = len(matches)
		p.publish(ctx, matches, item.Text, run.batchID, o.itemID, redacted)
	})

	for i := dispatched; i < len(items); i++ {
		run.outcomes[i] = outcome[R]{itemID: itemID(items[i], i), err: err}
	}

	run.metrics = batchMetrics(run.outcomes, dispatched)
	run.metrics.Duration = time.Since(start)
	p.logBatch(msg, run.batchID, run.metrics)
	return run, err
}

// batchMetrics counts the outcomes of the first dispatched items; the rest
// were cancelled
func batchMetrics[R any](outcomes []outcome[R], dispatched int) BatchMetrics {
	m := BatchMetrics{Items: len(outcomes), Cancelled: len(outcomes) - dispatched}
	for _, o := range outcomes[:dispatched] {
		if o.err != nil {
			m.Failed++
			continue
		}
		m.Succeeded++
		m.Matches += o.matches
	}
	return m
}

// dispatch starts work(0..n-1) in order under a weighted semaphore and waits
// for everything it started. It returns how many items were started and,
// when dispatch stopped early, the context error.
func (p *Processor) dispatch(ctx context.Context, n, maxConcurrency int, work func(i int)) (int, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = p.config.MaxConcurrency
	}
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.GOMAXPROCS(0)
	}

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	var wg sync.WaitGroup

	var stopErr error
	started := 0
	for ; started < n; started++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				stopErr = contextErr(ctx, err)
				break
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			stopErr = contextErr(ctx, err)
			break
		}
		// Acquire can succeed on an already cancelled context
		if err := ctx.Err(); err != nil {
			sem.Release(1)
			stopErr = err
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			work(i)
		}(started)
	}

	wg.Wait()
	return started, stopErr
}

// contextErr prefers the context's own error over the limiter's wrapping
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// publish streams the findings of one item. Publishing failures are
// logged and never fail the item.
func (p *Processor) publish(ctx context.Context, matches []scan.Match, text, batchID, itemID string, redacted bool) {
	if p.streamer == nil || !p.config.StreamFindings || len(matches) == 0 {
		return
	}
	findings := stream.NewFindings(matches, text, batchID, itemID, redacted, stream.WithValueKey(p.findingKey))
	if err := p.streamer.Stream(context.WithoutCancel(ctx), findings); err != nil {
		p.logger.Warn("failed to stream findings",
			zap.String("batch_id", batchID),
			zap.String("item_id", itemID),
			zap.Int("findings", len(findings)),
			zap.Error(err),
		)
	}
}

func (p *Processor) logBatch(msg, batchID string, m BatchMetrics) {
	p.logger.Debug(msg,
		zap.String("batch_id", batchID),
		zap.Int("items", m.Items),
		zap.Int("failed", m.Failed),
		zap.Int("cancelled", m.Cancelled),
		zap.Int("matches", m.Matches),
		zap.Duration("duration", m.Duration),
	)
}

func itemID(item Item, index int) string {
	if item.ID != "" {
		return item.ID
	}
	return strconv.Itoa(index)
}
