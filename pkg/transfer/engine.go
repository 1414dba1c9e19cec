// Package transfer implements copy, move and sync across repositories of a
// single backend.
//
// Every operation is all-or-nothing per object. Batches are not
// transactional: objects copied before a failure stay copied and the
// failure is reported per item in a BatchResult.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/storagekit/pkg/match"
	"github.com/3leaps/storagekit/pkg/provider"
)

// Config configures an Engine.
type Config struct {
	// PathMode maps sync sources to targets. Default: PathFlatten.
	PathMode PathMode

	// PathTemplate overrides PathMode with a custom mapping, e.g.
	// "{dir[0]}/{filename}". See PathTemplate for placeholders.
	PathTemplate string

	// RateLimit caps object copies per second during sync (0 = unlimited).
	RateLimit float64

	// Logger receives per-object events. Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{PathMode: PathFlatten}
}

// Engine runs cross-repository operations against one backend.
//
// An Engine holds no per-operation state and may be shared.
type Engine struct {
	backend  provider.Backend
	template *PathTemplate
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New creates an engine. It fails on an invalid path mode or template.
func New(backend provider.Backend, cfg Config) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("transfer: backend is required")
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("transfer: rate limit must be >= 0, got %v", cfg.RateLimit)
	}

	mode, err := ParsePathMode(string(cfg.PathMode))
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	raw := cfg.PathTemplate
	if raw == "" {
		raw = mode.template()
	}
	tpl, err := CompilePathTemplate(raw)
	if err != nil {
		return nil, fmt.Errorf("transfer: path template: %w", err)
	}

	e := &Engine{
		backend:  backend,
		template: tpl,
		logger:   cfg.Logger,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return e, nil
}

// Copy copies src to dst. Extensions must match (case-insensitive); a
// mismatch fails before any backend call.
//
// The target is overwritten unless opts carries a precondition. Copying
// an object onto itself only checks that it exists.
func (e *Engine) Copy(ctx context.Context, src, dst provider.ObjectRef, opts provider.CopyOptions) error {
	return e.Transfer(ctx, src, dst, false, opts)
}

// Move copies src to dst, then deletes src.
func (e *Engine) Move(ctx context.Context, src, dst provider.ObjectRef, opts provider.CopyOptions) error {
	return e.Transfer(ctx, src, dst, true, opts)
}

// Transfer copies src to dst and deletes src when deleteSource is set.
// If the copy fails the source is left untouched.
func (e *Engine) Transfer(ctx context.Context, src, dst provider.ObjectRef, deleteSource bool, opts provider.CopyOptions) error {
	if err := checkExtensions(src.Key, dst.Key); err != nil {
		return err
	}

	if src == dst {
		_, err := e.backend.HeadObject(ctx, src.Repository, src.Key)
		return err
	}

	if err := CopyObject(ctx, e.backend, src, dst, opts); err != nil {
		return err
	}
	e.logger.Debug("Copied object",
		zap.String("src", src.String()),
		zap.String("dst", dst.String()))

	if !deleteSource {
		return nil
	}
	if err := e.backend.DeleteObject(ctx, src.Repository, src.Key); err != nil {
		return err
	}
	e.logger.Debug("Deleted source", zap.String("src", src.String()))
	return nil
}

// SyncRequest describes a prefix synchronization.
type SyncRequest struct {
	SrcRepo   string
	SrcPrefix string
	DstRepo   string
	DstPrefix string

	// Match restricts the batch by glob on the full source key.
	Match match.Config

	// Filter restricts the batch by size, modification time or key regex.
	Filter match.FilterConfig

	// NoOverwrite fails items whose target already exists.
	NoOverwrite bool

	// DryRun plans targets without copying.
	DryRun bool
}

// ItemResult is the outcome for one source object.
type ItemResult struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Size   int64  `json:"size"`

	// Code is the JSONL error code for failed items.
	Code string `json:"code,omitempty"`
	Err  error  `json:"-"`
}

// BatchResult enumerates what a sync did, in listing order.
type BatchResult struct {
	Succeeded []ItemResult
	Failed    []ItemResult
	DryRun    bool
	Duration  time.Duration
}

// Total returns the number of objects attempted.
func (r *BatchResult) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// Bytes sums the source sizes of succeeded items.
func (r *BatchResult) Bytes() int64 {
	var n int64
	for _, item := range r.Succeeded {
		n += item.Size
	}
	return n
}

// Sync copies every object under req.SrcPrefix (raw prefix match) to
// req.DstPrefix, one at a time in listing order. Keys ending in "/" are
// folder markers and are skipped.
//
// A listing failure aborts with no result. Per-object failures are
// collected; when any occur the returned error is a *BatchError carrying
// the same result.
func (e *Engine) Sync(ctx context.Context, req SyncRequest) (*BatchResult, error) {
	start := time.Now()

	plan, err := e.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{DryRun: req.DryRun}
	opts := provider.CopyOptions{Precondition: provider.Precondition{IfNoneMatch: req.NoOverwrite}}

	for _, item := range plan {
		if item.Err != nil || req.DryRun {
			result.add(item)
			continue
		}

		if err := ctx.Err(); err != nil {
			item.Err = err
			result.add(item)
			continue
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				item.Err = err
				result.add(item)
				continue
			}
		}

		src := provider.ObjectRef{Repository: req.SrcRepo, Key: item.Source}
		dst := provider.ObjectRef{Repository: req.DstRepo, Key: item.Target}
		item.Err = e.Copy(ctx, src, dst, opts)
		if item.Err != nil {
			e.logger.Warn("Sync item failed",
				zap.String("src", src.String()),
				zap.String("dst", dst.String()),
				zap.Error(item.Err))
		}
		result.add(item)
	}

	result.Duration = time.Since(start)
	e.logger.Info("Sync complete",
		zap.String("src", req.SrcRepo+"/"+req.SrcPrefix),
		zap.String("dst", req.DstRepo+"/"+req.DstPrefix),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Bool("dry_run", req.DryRun),
		zap.Duration("duration", result.Duration))

	if len(result.Failed) > 0 {
		return result, &BatchError{Op: "sync", Result: result}
	}
	return result, nil
}

func (r *BatchResult) add(item ItemResult) {
	if item.Err != nil {
		item.Code = ErrorCode(item.Err)
		r.Failed = append(r.Failed, item)
		return
	}
	r.Succeeded = append(r.Succeeded, item)
}

// Plan lists the source prefix and maps each selected object to its target
// without copying. Items whose target cannot be derived carry Err.
func (e *Engine) Plan(ctx context.Context, req SyncRequest) ([]ItemResult, error) {
	matcher, err := match.New(req.Match)
	if err != nil {
		return nil, err
	}
	filter, err := match.NewFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	objects, err := e.backend.ListObjects(ctx, req.SrcRepo, req.SrcPrefix)
	if err != nil {
		return nil, err
	}

	plan := make([]ItemResult, 0, len(objects))
	targets := make(map[string]string, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") || !matcher.Match(obj.Key) || !filter.Match(obj) {
			continue
		}

		item := ItemResult{Source: obj.Key, Size: obj.Size}
		name, err := e.template.Apply(obj.Key, req.SrcPrefix)
		if err != nil {
			item.Err = err
			plan = append(plan, item)
			continue
		}
		item.Target = joinKey(req.DstPrefix, name)
		if err := checkExtensions(item.Source, item.Target); err != nil {
			item.Err = err
			plan = append(plan, item)
			continue
		}

		if prev, ok := targets[item.Target]; ok {
			e.logger.Warn("Sync targets collide; later source wins",
				zap.String("dst", req.DstRepo+"/"+item.Target),
				zap.String("src", obj.Key),
				zap.String("previous", prev))
		}
		targets[item.Target] = obj.Key
		plan = append(plan, item)
	}
	return plan, nil
}
