package search

import (
	"context"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/vulnscraper/vuln-scraper/types"
)

type ProgressState string

const (
	StateStarted   ProgressState = "STARTED"
	StateSucceeded ProgressState = "SUCCEEDED"
	StateFailed    ProgressState = "FAILED"
)

// ProgressEvent is a one-way notification emitted as each source starts and
// completes. Events arrive in completion order, never as a control input.
type ProgressEvent struct {
	Source types.Source
	State  ProgressState
	Count  int
	Err    *types.SourceError
}

type ProgressFunc func(ProgressEvent)

type options struct {
	timeout  time.Duration
	progress ProgressFunc
}

type option func(*options)

func WithTimeout(d time.Duration) option {
	return func(opts *options) {
		opts.timeout = d
	}
}

func WithProgress(f ProgressFunc) option {
	return func(opts *options) {
		opts.progress = f
	}
}

// Orchestrator fans one search request out to all configured source clients
// concurrently under a shared global deadline. A single source's failure
// never aborts the others.
type Orchestrator struct {
	*options
	clients []Client
	creds   types.Credentials

	progressMu sync.Mutex
}

func NewOrchestrator(clients []Client, creds types.Credentials, opts ...option) *Orchestrator {
	o := &options{
		timeout: defaultGlobalTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Orchestrator{
		options: o,
		clients: clients,
		creds:   creds,
	}
}

// Run returns exactly one SourceResult per configured client, success or
// failure. Sources still pending when the global deadline fires are recorded
// with a TIMEOUT error and empty records; their late results are discarded.
func (o *Orchestrator) Run(ctx context.Context, req types.SearchRequest) ([]types.SourceResult, error) {
	if err := req.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid search request: %w", err)
	}
	if len(o.clients) == 0 {
		return nil, xerrors.New("no sources configured")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resCh := make(chan types.SourceResult, len(o.clients))
	for _, c := range o.clients {
		go o.fetch(ctx, c, req, resCh)
	}

	bySource := make(map[types.Source]types.SourceResult, len(o.clients))
	for range o.clients {
		select {
		case res := <-resCh:
			bySource[res.Source] = res
			o.emit(completionEvent(res))
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Deterministic output order: one result per client in configuration
	// order, stragglers recorded as timed out.
	results := make([]types.SourceResult, 0, len(o.clients))
	for _, c := range o.clients {
		res, ok := bySource[c.Source()]
		if !ok {
			res = types.SourceResult{
				Source:  c.Source(),
				Err:     types.NewTimeout(ctx.Err()),
				Elapsed: o.timeout,
			}
			o.emit(completionEvent(res))
		}
		results = append(results, res)
	}
	return results, nil
}

func (o *Orchestrator) fetch(ctx context.Context, c Client, req types.SearchRequest, resCh chan<- types.SourceResult) {
	o.emit(ProgressEvent{Source: c.Source(), State: StateStarted})

	start := time.Now()
	records, err := c.Search(ctx, req, o.creds)

	resCh <- types.SourceResult{
		Source:  c.Source(),
		Records: records,
		Err:     types.AsSourceError(err),
		Elapsed: time.Since(start),
	}
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.progress == nil {
		return
	}
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.progress(ev)
}

func completionEvent(res types.SourceResult) ProgressEvent {
	if res.Err != nil {
		return ProgressEvent{Source: res.Source, State: StateFailed, Err: res.Err}
	}
	return ProgressEvent{Source: res.Source, State: StateSucceeded, Count: len(res.Records)}
}
