package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bakeflow/internal/bake"
	"github.com/roach88/bakeflow/internal/export"
	"github.com/roach88/bakeflow/internal/scene"
)

// ExportResult is the success payload of the export command.
type ExportResult struct {
	Objects   int      `json:"objects"`
	Processed int      `json:"processed"`
	Warnings  []string `json:"warnings,omitempty"`
}

func (r ExportResult) String() string {
	s := fmt.Sprintf("exported %d item(s) across %d object(s)", r.Processed, r.Objects)
	if len(r.Warnings) > 0 {
		s += fmt.Sprintf(", %d topology warning(s)", len(r.Warnings))
	}
	return s
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <scene-file>",
		Short: "Export scene geometry into the cache without simulating",
		Long: `Classify every scene object, then export the missing geometry into
the cache database. Already-cached frames are skipped unless the config
forces re-export. Exit code 1 signals an export failure, including a
topology change under strict_topology.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runExport(opts *RootOptions, cmd *cobra.Command, scenePath string) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	sc, err := scene.Load(scenePath)
	if err != nil {
		formatter.Error(ErrCodeScene, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid scene", err)
	}

	logger := newLogger(opts, cmd.ErrOrStderr())
	bctx, err := bake.NewContext(cfg, logger)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open bake context", err)
	}
	defer bctx.Close()

	sched := export.New(bctx.Store, scene.Procedural{}, logger, export.Options{
		SkipReexport:             cfg.Bake.SkipReexport,
		ForceReexport:            cfg.Bake.ForceReexport,
		StrictTopology:           cfg.Bake.StrictTopology,
		SuppressTopologyWarnings: cfg.Bake.SuppressTopologyWarnings,
	})

	ctx := cmd.Context()
	if err := sched.Plan(ctx, sc); err != nil {
		formatter.Error(ErrCodeExport, err.Error(), nil)
		return WrapExitError(ExitFailure, "plan export", err)
	}

	budget := time.Duration(cfg.Bake.StepBudgetMS) * time.Millisecond
	for {
		p := sched.Drain(ctx, budget)
		if p == export.ProgressContinuing {
			formatter.VerboseLog("export: %d item(s) remaining", sched.Remaining())
			continue
		}
		if p == export.ProgressErrored {
			formatter.Error(ErrCodeExport, sched.Err().Error(), nil)
			return WrapExitError(ExitFailure, "export failed", sched.Err())
		}
		break
	}

	result := ExportResult{
		Objects:   len(sched.Objects()),
		Processed: sched.Processed(),
	}
	for _, w := range sched.Warnings() {
		result.Warnings = append(result.Warnings, w.Error())
	}
	return formatter.Success(result)
}
