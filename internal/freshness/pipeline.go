// Package freshness finds member records that are due for a refresh,
// optionally re-summarizes them, and pushes them back into the record
// store and the vector index.
package freshness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/enhance"
	"github.com/ziadkadry99/memberrec/internal/members"
)

// Store is the part of the record store the pipeline needs.
type Store interface {
	GetStale(ctx context.Context, version string, ttl time.Duration) ([]members.Member, error)
	UpsertRefreshed(ctx context.Context, records []members.Member) error
}

// Indexer writes members into the vector index.
type Indexer interface {
	InsertMembers(ctx context.Context, records []members.Member, onlyVersion string) (int, error)
}

// Enhancer produces a new summary for a member.
type Enhancer interface {
	Enhance(ctx context.Context, m members.Member, opts enhance.Options) (*enhance.Result, error)
}

// ProgressFunc is called after each stale record is handled.
type ProgressFunc func(processed, total int, memberNo int64)

// Config tunes a Pipeline.
type Config struct {
	// TTL is how long a refreshed record stays fresh.
	TTL time.Duration
	// Delay is the pause between enhanced records.
	Delay         time.Duration
	CompanySearch bool
	ProfileSearch bool
}

// Deps are the collaborators of a Pipeline. Agent is only required for
// enhanced runs; History and Hub are optional.
type Deps struct {
	Store   Store
	Index   Indexer
	Agent   Enhancer
	History History
	Hub     *Hub
	Logger  *zap.Logger
}

// RunOptions controls a single run.
type RunOptions struct {
	Enhance  bool
	RunID    string
	Progress ProgressFunc
}

// Pipeline refreshes stale members one version at a time.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPipeline(deps Deps, cfg Config) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) lockFor(version string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[version]
	if !ok {
		l = &sync.Mutex{}
		p.locks[version] = l
	}
	return l
}

// Handle tracks a run started with Start.
type Handle struct {
	RunID string
	done  chan struct{}
	res   *Result
	err   error
}

// Done is closed when the run finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes.
func (h *Handle) Wait() (*Result, error) {
	<-h.done
	return h.res, h.err
}

// Run refreshes version and blocks until done.
func (p *Pipeline) Run(ctx context.Context, version string, opts RunOptions) (*Result, error) {
	h, err := p.Start(ctx, version, opts)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// Start validates version, claims its lock and runs the refresh in the
// background.
func (p *Pipeline) Start(ctx context.Context, version string, opts RunOptions) (*Handle, error) {
	run, err := lookup(version)
	if err != nil {
		return nil, err
	}
	if opts.Enhance && p.deps.Agent == nil {
		return nil, errors.New("enhanced refresh requires an LLM agent")
	}

	lock := p.lockFor(version)
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, version)
	}

	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	res := &Result{
		RunID:     opts.RunID,
		Version:   version,
		Enhance:   opts.Enhance,
		Status:    StatusRunning,
		StartedAt: p.now(),
	}
	h := &Handle{RunID: res.RunID, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer lock.Unlock()
		h.res, h.err = p.execute(ctx, run, res, opts)
	}()
	return h, nil
}

func (p *Pipeline) execute(ctx context.Context, run runner, res *Result, opts RunOptions) (*Result, error) {
	logger := p.logger.With(zap.String("run_id", res.RunID), zap.String("version", res.Version))
	logger.Info("refresh started", zap.Bool("enhance", opts.Enhance))

	if p.deps.History != nil {
		if err := p.deps.History.Begin(ctx, res); err != nil {
			logger.Warn("recording run start failed", zap.Error(err))
		}
	}
	p.deps.Hub.Publish(Event{Type: EventStarted, RunID: res.RunID, Version: res.Version})

	userProgress := opts.Progress
	opts.Progress = func(processed, total int, memberNo int64) {
		if userProgress != nil {
			userProgress(processed, total, memberNo)
		}
		p.deps.Hub.Publish(Event{
			Type: EventProgress, RunID: res.RunID, Version: res.Version,
			Processed: processed, Total: total, MemberNo: memberNo,
		})
	}

	err := run(p, ctx, res, opts)

	finished := p.now()
	res.FinishedAt = &finished
	event := Event{RunID: res.RunID, Version: res.Version, Result: res}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		event.Type = EventFailed
		event.Error = res.Error
		logger.Error("refresh failed", zap.Error(err))
	} else {
		res.Status = StatusCompleted
		event.Type = EventCompleted
		logger.Info("refresh completed",
			zap.Int("stale", res.Stale),
			zap.Int("enhanced", res.Enhanced),
			zap.Int("failed", res.Failed),
			zap.Int("upserted", res.Upserted),
			zap.Int("vectorized", res.Vectorized),
			zap.Duration("duration", res.Duration()),
		)
	}

	if p.deps.History != nil {
		// Record the outcome even when ctx was cancelled.
		if herr := p.deps.History.Finish(context.WithoutCancel(ctx), res); herr != nil {
			logger.Warn("recording run result failed", zap.Error(herr))
		}
	}
	p.deps.Hub.Publish(event)
	return res, err
}

// runV1 pulls stale records, optionally enhances them one at a time,
// upserts them and inserts them into the v1 collection.
func (p *Pipeline) runV1(ctx context.Context, res *Result, opts RunOptions) error {
	stale, err := p.deps.Store.GetStale(ctx, res.Version, p.cfg.TTL)
	if err != nil {
		return fmt.Errorf("loading stale members: %w", err)
	}
	res.Stale = len(stale)
	if len(stale) == 0 {
		p.logger.Info("no stale members", zap.String("version", res.Version))
		return nil
	}

	ready := make([]members.Member, 0, len(stale))
	for i, m := range stale {
		if opts.Enhance {
			if i > 0 {
				if err := p.sleep(ctx, p.cfg.Delay); err != nil {
					return err
				}
			}
			out, err := p.deps.Agent.Enhance(ctx, m, enhance.Options{
				CompanySearch: p.cfg.CompanySearch,
				ProfileSearch: p.cfg.ProfileSearch,
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("enhancement failed",
					zap.Int64("member_no", m.MemberNo), zap.Error(err))
				res.Failed++
				res.Errors = append(res.Errors, RecordError{MemberNo: m.MemberNo, Error: err.Error()})
				opts.Progress(i+1, len(stale), m.MemberNo)
				continue
			}
			m.Summary = out.Summary
			res.Enhanced++
			res.Usage.Merge(out.Usage)
		}
		ready = append(ready, m)
		opts.Progress(i+1, len(stale), m.MemberNo)
	}

	if err := p.deps.Store.UpsertRefreshed(ctx, ready); err != nil {
		return fmt.Errorf("upserting members: %w", err)
	}
	res.Upserted = len(ready)

	n, err := p.deps.Index.InsertMembers(ctx, ready, res.Version)
	res.Vectorized = n
	if err != nil {
		return fmt.Errorf("vectorizing members: %w", err)
	}
	return nil
}
