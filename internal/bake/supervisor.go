package bake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/bakeflow/internal/checkpoint"
	"github.com/roach88/bakeflow/internal/export"
	"github.com/roach88/bakeflow/internal/geometry"
	"github.com/roach88/bakeflow/internal/scene"
	"github.com/roach88/bakeflow/internal/sim"
)

// EngineFactory builds a fresh engine handle. The supervisor calls it
// once per attempt: a retry replaces only the engine, never the store,
// outputs or savestates, so the retry resumes from the last committed
// frame.
type EngineFactory func() (sim.Engine, error)

// VersionError is a fatal mismatch between the engine the binary was
// built against and the engine it loaded. Never retried.
type VersionError struct {
	Want [3]int
	Got  [3]int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("engine version mismatch: built against %d.%d.%d, loaded %d.%d.%d",
		e.Want[0], e.Want[1], e.Want[2], e.Got[0], e.Got[1], e.Got[2])
}

// Supervisor runs one bake end to end: export the scene geometry into
// the cache, then simulate with a bounded retry loop.
type Supervisor struct {
	bctx    *Context
	sc      *scene.Scene
	src     scene.Source
	factory EngineFactory
	expect  [3]int
	status  *sim.Status
}

func NewSupervisor(bctx *Context, sc *scene.Scene, src scene.Source,
	factory EngineFactory, expect [3]int, status *sim.Status) *Supervisor {
	return &Supervisor{
		bctx:    bctx,
		sc:      sc,
		src:     src,
		factory: factory,
		expect:  expect,
		status:  status,
	}
}

// Run exports then simulates. The export phase drains completely before
// the first frame steps; the simulation phase retries transient engine
// failures up to max_retries times, resuming from the last savestate.
func (s *Supervisor) Run(ctx context.Context) error {
	cfg := s.bctx.Cfg

	sched, err := s.export(ctx)
	if err != nil {
		s.status.SetError(err.Error())
		return err
	}

	out, err := sim.NewOutputWriter(s.bctx.OutputDir, s.bctx.Guard, cfg.Output.EnableWhitewater)
	if err != nil {
		return err
	}
	var ckpt *checkpoint.Manager
	if cfg.Savestates.Enabled {
		ckpt = checkpoint.NewManager(s.bctx.SavestateDir, s.bctx.Guard, s.bctx.Log,
			checkpoint.Options{
				ChunkElems:     cfg.Savestates.ChunkElems,
				KeepSavestates: cfg.Savestates.Interval > 0,
				Interval:       cfg.Savestates.Interval,
			})
	}

	for attempt := 0; ; attempt++ {
		err := s.attempt(ctx, sched, out, ckpt, attempt)
		if err == nil {
			return nil
		}
		var verr *VersionError
		if errors.As(err, &verr) {
			s.status.SetError(verr.Error())
			return verr
		}
		if attempt >= cfg.Bake.MaxRetries {
			msg := err.Error()
			if isOutOfMemory(err) {
				msg = "engine ran out of memory; reduce resolution or particle counts: " + msg
			}
			s.status.SetError(msg)
			return fmt.Errorf("bake failed after %d attempt(s): %s", attempt+1, msg)
		}
		s.bctx.Log.Warn("simulation attempt failed, retrying",
			"attempt", attempt+1, "max_retries", cfg.Bake.MaxRetries, "err", err)
	}
}

// export plans and fully drains the geometry export before any frame
// runs, yielding at the configured budget so callers see progress.
func (s *Supervisor) export(ctx context.Context) (*export.Scheduler, error) {
	cfg := s.bctx.Cfg
	sched := export.New(s.bctx.Store, s.src, s.bctx.Log, export.Options{
		SkipReexport:             cfg.Bake.SkipReexport,
		ForceReexport:            cfg.Bake.ForceReexport,
		StrictTopology:           cfg.Bake.StrictTopology,
		SuppressTopologyWarnings: cfg.Bake.SuppressTopologyWarnings,
	})
	if err := sched.Plan(ctx, s.sc); err != nil {
		return nil, fmt.Errorf("plan export: %w", err)
	}

	budget := time.Duration(cfg.Bake.StepBudgetMS) * time.Millisecond
	for {
		switch sched.Drain(ctx, budget) {
		case export.ProgressDone:
			if n := len(sched.Warnings()); n > 0 {
				s.bctx.Log.Warn("export finished with topology warnings", "count", n)
			}
			return sched, nil
		case export.ProgressErrored:
			return nil, fmt.Errorf("export: %w", sched.Err())
		case export.ProgressContinuing:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
}

// attempt runs one full simulation pass with a fresh engine. Attempts
// after the first always resume so completed frames are never redone.
func (s *Supervisor) attempt(ctx context.Context, sched *export.Scheduler,
	out *sim.OutputWriter, ckpt *checkpoint.Manager, attempt int) error {
	cfg := s.bctx.Cfg

	eng, err := s.factory()
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	maj, min, pat := eng.Version()
	if got := [3]int{maj, min, pat}; got != s.expect {
		return &VersionError{Want: s.expect, Got: got}
	}

	params := sim.NewParameters()
	params.SetScalar("viscosity", cfg.Simulation.Viscosity.Parameter())
	params.SetScalar("surface_tension", cfg.Simulation.SurfaceTension.Parameter())
	g := cfg.Simulation.Gravity
	params.SetVector("gravity", sim.Constant(geometry.Vec3{
		X: float32(g[0]), Y: float32(g[1]), Z: float32(g[2]),
	}))

	stepper := sim.NewStepper(eng, s.bctx.Store, ckpt, out, s.status, params,
		s.bctx.Log, s.sc, sched.Objects(), sim.Config{
			FrameStart:     cfg.Bake.FrameStart,
			FrameEnd:       cfg.Bake.FrameEnd,
			DT:             cfg.Simulation.DT,
			TimelineOffset: cfg.Simulation.TimelineOffset,
			Resume:         cfg.Savestates.Resume || attempt > 0,
			SavestateID:    cfg.Savestates.SavestateID,
		})
	if err := stepper.Initialize(ctx); err != nil {
		return err
	}
	return stepper.Run(ctx)
}

// isOutOfMemory classifies allocation failures surfaced by the engine
// so the terminal error can carry actionable guidance.
func isOutOfMemory(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "bad_alloc") ||
		strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "cannot allocate")
}
