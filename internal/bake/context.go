// Package bake owns the outer bake loop: one Context per invocation,
// one Supervisor driving export, simulation and retries.
package bake

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/roach88/bakeflow/internal/config"
	"github.com/roach88/bakeflow/internal/fsguard"
	"github.com/roach88/bakeflow/internal/store"
)

// Context holds everything a bake invocation shares: the run token,
// resolved directories, the open geometry store and the path guard. It
// is built once and passed down read-only.
type Context struct {
	RunID string

	OutputDir    string
	SavestateDir string
	CachePath    string

	Cfg   *config.Config
	Log   *log.Logger
	Store *store.Store
	Guard *fsguard.Guard
}

// NewContext resolves directories, opens the geometry store and fences
// the writable paths. Close releases the store.
func NewContext(cfg *config.Config, logger *log.Logger) (*Context, error) {
	outDir := cfg.Output.Dir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	saveDir := filepath.Join(outDir, "savestates")
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create savestate dir: %w", err)
	}

	cachePath := cfg.Output.CacheFile
	if !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(outDir, cachePath)
	}
	st, err := store.Open(cachePath)
	if err != nil {
		return nil, fmt.Errorf("open geometry store: %w", err)
	}

	runID := uuid.Must(uuid.NewV7()).String()
	return &Context{
		RunID:        runID,
		OutputDir:    outDir,
		SavestateDir: saveDir,
		CachePath:    cachePath,
		Cfg:          cfg,
		Log:          logger.With("run_id", runID),
		Store:        st,
		Guard:        fsguard.New([]string{outDir}, fsguard.DefaultExtensions),
	}, nil
}

func (c *Context) Close() error {
	return c.Store.Close()
}
