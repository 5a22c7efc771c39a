package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/molt/pkg/config"
	"github.com/cuemby/molt/pkg/device"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/fetch"
	"github.com/cuemby/molt/pkg/github"
	"github.com/cuemby/molt/pkg/history"
	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/metrics"
	"github.com/cuemby/molt/pkg/pathguard"
	"github.com/cuemby/molt/pkg/probe"
	"github.com/cuemby/molt/pkg/stage"
	"github.com/cuemby/molt/pkg/swap"
	"github.com/cuemby/molt/pkg/transport"
	"github.com/cuemby/molt/pkg/types"
)

// State is the engine's position in the update sequence
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateResolving  State = "resolving"
	StateChecking   State = "checking"
	StateStaging    State = "staging"
	StateSwapping   State = "swapping"
	StateFinalized  State = "finalized"
	StateResetting  State = "resetting"
	StateRolledBack State = "rolled-back"
	StateAborted    State = "aborted"
)

// HookLoader receives the post-update hook identifier after finalization.
// The engine never executes hook code itself.
type HookLoader interface {
	LoadHook(identifier string) error
}

type nopHookLoader struct{}

func (nopHookLoader) LoadHook(string) error { return nil }

// Options are the injected collaborators. Zero values get working
// host-side defaults.
type Options struct {
	Capabilities device.Capabilities
	Link         transport.Link
	Resetter     device.Resetter
	Hooks        HookLoader
	History      *history.Store // optional
	GitHub       *github.Client // overridable for mirrors and tests
}

// Engine sequences a complete update attempt: boot recovery, gates,
// resolution, staging, swap, reset. One update at a time per device;
// the engine is single-threaded by design.
type Engine struct {
	cfg      *config.Config
	root     string
	caps     device.Capabilities
	link     transport.Link
	resetter device.Resetter
	hooks    HookLoader
	hist     *history.Store

	fetcher *fetch.Client
	gh      *github.Client
	orch    *swap.Orchestrator
	probe   *probe.Probe
	guard   *pathguard.Guard

	attemptID string
	state     State
	logger    zerolog.Logger
}

// New constructs an engine rooted at root. Boot recovery runs here, as
// part of swap orchestrator construction.
func New(cfg *config.Config, root string, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	caps := opts.Capabilities
	if caps == nil {
		caps = device.NewHost()
	}
	link := opts.Link
	if link == nil {
		link = transport.Loopback{}
	}
	resetter := opts.Resetter
	if resetter == nil {
		resetter = device.NewProcessResetter()
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = nopHookLoader{}
	}

	orch, err := swap.New(root, cfg.StageDir, cfg.BackupDir)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(cfg, caps)
	gh := opts.GitHub
	if gh == nil {
		gh = github.New(cfg, fetcher)
	}

	attemptID := uuid.New().String()
	orch.SetAttemptID(attemptID)

	return &Engine{
		cfg:       cfg,
		root:      root,
		caps:      caps,
		link:      link,
		resetter:  resetter,
		hooks:     hooks,
		hist:      opts.History,
		fetcher:   fetcher,
		gh:        gh,
		orch:      orch,
		probe:     probe.New(caps),
		guard:     pathguard.New(cfg.Allow, cfg.Ignore),
		attemptID: attemptID,
		state:     StateIdle,
		logger:    log.WithAttemptID(attemptID).With().Str("component", "engine").Logger(),
	}, nil
}

// State returns the engine's current state
func (e *Engine) State() State { return e.state }

// Run performs one update attempt and returns the outcome. The error
// carries the cause for every outcome except updated and no-change.
func (e *Engine) Run(ctx context.Context) (types.Outcome, error) {
	started := time.Now().UTC()
	e.caps.LEDPattern("update-start")
	if e.hist != nil {
		// Best effort; the scheduler reads this stamp for rate limiting
		_ = e.hist.SetLastCheck(started)
	}

	outcome, target, err := e.run(ctx)

	e.recordAttempt(started, target, outcome, err)
	metrics.UpdatesTotal.WithLabelValues(string(outcome)).Inc()
	metrics.UpdateDuration.Observe(time.Since(started).Seconds())

	switch outcome {
	case types.OutcomeUpdated:
		e.caps.LEDPattern("update-ok")
	case types.OutcomeNoChange:
		e.caps.LEDPattern("update-idle")
	default:
		e.caps.LEDPattern("update-fail")
	}
	return outcome, err
}

// run drives the state machine; Run wraps it with bookkeeping
func (e *Engine) run(ctx context.Context) (types.Outcome, *types.Target, error) {
	// Connecting
	e.state = StateConnecting
	if err := e.link.Connect(); err != nil {
		e.state = StateAborted
		return types.OutcomeAbortedValidate, nil, errdefs.Wrap(errdefs.ErrNetwork, err)
	}

	// Resolving
	e.state = StateResolving
	target, err := e.gh.ResolveTarget(ctx, e.cfg.Channel, e.cfg.Branch)
	if err != nil {
		e.state = StateAborted
		return types.OutcomeAbortedValidate, nil, err
	}
	e.logger.Info().Str("ref", target.Ref).Str("commit", target.Commit).
		Str("mode", string(target.Mode)).Msg("Resolved target")

	// Checking: resource gate
	e.state = StateChecking
	if err := e.probe.CheckThresholds(e.cfg.MinFreeMem, e.cfg.MinBatteryPct, e.cfg.MinCPUMHz); err != nil {
		e.state = StateAborted
		return types.OutcomeAbortedResource, target, err
	}

	// Checking: identity gate
	installed, err := swap.ReadVersion(e.root)
	if err != nil {
		// A corrupt record is recovered by treating the device as
		// unversioned
		e.logger.Warn().Err(err).Msg("Unreadable version record, treating as absent")
		installed = nil
	}
	if installed != nil && installed.Commit == target.Commit && !e.cfg.Force {
		e.logger.Info().Str("ref", target.Ref).Msg("Already at target version")
		e.state = StateIdle
		return types.OutcomeNoChange, target, nil
	}

	// Candidate enumeration (manifest or tree)
	plan, err := e.buildPlan(ctx, target)
	if err != nil {
		e.state = StateAborted
		if errdefs.IsResource(err) {
			return types.OutcomeAbortedResource, target, err
		}
		return types.OutcomeAbortedValidate, target, err
	}
	if len(plan.candidates) == 0 && len(plan.deletes) == 0 {
		e.logger.Info().Msg("Nothing to update")
		e.state = StateIdle
		return types.OutcomeNoChange, target, nil
	}

	// Pre-flight storage gate: stage and backup coexist during the swap
	if err := e.probe.RequireStorage(e.root, stage.TotalSize(plan.candidates)); err != nil {
		e.state = StateAborted
		return types.OutcomeAbortedResource, target, err
	}
	if e.cfg.MinFreeStorage > 0 {
		free, ferr := e.probe.FreeStorage(e.root)
		if ferr == nil && free < e.cfg.MinFreeStorage {
			e.state = StateAborted
			return types.OutcomeAbortedResource, target,
				errdefs.Wrapf(errdefs.ErrResource, "free storage %d below minimum %d", free, e.cfg.MinFreeStorage)
		}
	}

	// Staging
	e.state = StateStaging
	chunk := e.probe.AdaptiveChunk(e.cfg.Chunk)
	coord := stage.New(stage.Options{
		Root:            e.root,
		StageDir:        e.orch.StageDir(),
		Fetcher:         e.fetcher,
		ChunkSize:       chunk,
		PreferDelta:     e.cfg.EnableDeltaUpdates && transport.PreferDelta(e.link),
		AllowUnverified: e.cfg.AllowUnverified,
	})
	if err := coord.StageAll(ctx, plan.candidates); err != nil {
		e.orch.Recover() // clears stage; live tree was never touched
		e.state = StateRolledBack
		if errdefs.IsIntegrity(err) || errdefs.IsPath(err) {
			return types.OutcomeAbortedValidate, target, err
		}
		return types.OutcomeRolledBack, target, err
	}

	// Swapping
	e.state = StateSwapping
	var patterns []string
	if e.cfg.Channel == types.ChannelDeveloper {
		patterns = e.cfg.DeletePatterns
	}
	rec := types.VersionRecord{Ref: target.Ref, Commit: target.Commit}
	if err := e.orch.Swap(rec, plan.deletes, patterns); err != nil {
		e.state = StateRolledBack
		return types.OutcomeRolledBack, target, err
	}

	// Finalized
	e.state = StateFinalized
	if plan.postUpdate != "" {
		if err := e.hooks.LoadHook(plan.postUpdate); err != nil {
			// The swap is already committed; a hook failure is reported,
			// never unwound
			e.logger.Error().Err(err).Str("hook", plan.postUpdate).Msg("Post-update hook failed")
		}
	}

	// Resetting
	e.state = StateResetting
	if err := e.resetter.Reset(e.cfg.ResetMode); err != nil {
		e.logger.Error().Err(err).Msg("Reset failed")
	}
	return types.OutcomeUpdated, target, nil
}

// recordAttempt persists the attempt summary best-effort
func (e *Engine) recordAttempt(started time.Time, target *types.Target, outcome types.Outcome, cause error) {
	if e.hist == nil {
		return
	}
	rec := types.AttemptRecord{
		ID:         e.attemptID,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Channel:    e.cfg.Channel,
		Outcome:    outcome,
	}
	if target != nil {
		rec.TargetRef = target.Ref
		rec.Commit = target.Commit
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := e.hist.RecordAttempt(rec); err != nil {
		e.logger.Warn().Err(err).Msg("Could not record attempt")
	}
	kind := history.KindUpdate
	if cause != nil {
		kind = history.KindError
	}
	_ = e.hist.RecordEvent(kind, string(outcome))
}
