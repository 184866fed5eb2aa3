package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/natefinch/atomic"

	"github.com/roach88/bakeflow/internal/fsguard"
)

// DefaultChunkElems bounds one chunked transfer to 2^21 elements.
const DefaultChunkElems = 1 << 21

// slotPrefix names both the default slot directory and the numbered
// retained slots (prefix + zero-padded 6-digit frame number).
const slotPrefix = "autosave"

// ErrNoSavestate is returned by Load when neither the requested numbered
// slot nor the default slot holds a committed manifest.
var ErrNoSavestate = errors.New("no savestate available")

// Source supplies particle state for saving. ReadAttr fills dst with
// count elements starting at start; dst is sized count*ElemSize by the
// manager. Implementations stream from the engine and must not require
// the manager to materialize whole arrays.
type Source interface {
	Counts() (marker, diffuse int)
	Features() Features
	GridDims() (i, j, k int)
	ReadAttr(attr Attr, start, count int, dst []byte) error
}

// Sink receives particle state during loading. Begin is called once with
// the manifest before any chunk so the engine can size its arrays;
// WriteAttr then receives each chunk in order.
type Sink interface {
	Begin(m *Manifest) error
	WriteAttr(attr Attr, start, count int, data []byte) error
}

// Options configure a Manager.
type Options struct {
	// ChunkElems caps elements per transfer. Zero selects
	// DefaultChunkElems. This is a tuning knob of the side doing the
	// transfer, not a format parameter: readers never assume the
	// writer's chunk size.
	ChunkElems int

	// KeepSavestates enables copying the default slot into a numbered
	// slot every Interval committed frames.
	KeepSavestates bool
	Interval       int
}

// Manager owns one savestates directory.
type Manager struct {
	dir   string
	guard *fsguard.Guard
	log   *log.Logger
	opts  Options

	// afterDelete runs between the delete and rename phases of a
	// commit. Fault-injection tests use it to simulate a crash inside
	// the documented non-atomic window.
	afterDelete func() error
}

// NewManager creates a manager for the given savestates directory.
func NewManager(dir string, guard *fsguard.Guard, logger *log.Logger, opts Options) *Manager {
	if opts.ChunkElems <= 0 {
		opts.ChunkElems = DefaultChunkElems
	}
	return &Manager{dir: dir, guard: guard, log: logger, opts: opts}
}

// DefaultSlot returns the default slot directory path.
func (m *Manager) DefaultSlot() string {
	return filepath.Join(m.dir, slotPrefix)
}

// NumberedSlot returns the retained slot directory path for a frame.
func (m *Manager) NumberedSlot(frame int) string {
	return filepath.Join(m.dir, fmt.Sprintf("%s%06d", slotPrefix, frame))
}

// Save checkpoints the source's particle state into the default slot.
// simFrame is the simulator's current frame; the committed resume cursor
// is simFrame-1. On success the retention policy may copy the slot into
// a numbered directory.
//
// A failed save leaves the previous commit's numbered backups untouched;
// the default slot may be mid-commit, which the loader treats as absent.
func (m *Manager) Save(src Source, frameStart, frameEnd, simFrame int) error {
	slot := m.DefaultSlot()
	if err := os.MkdirAll(slot, 0o755); err != nil {
		return fmt.Errorf("save: create slot: %w", err)
	}

	marker, diffuse := src.Counts()
	feats := src.Features()
	gi, gj, gk := src.GridDims()

	manifest := &Manifest{
		Frame:               simFrame,
		FrameStart:          frameStart,
		FrameEnd:            frameEnd,
		FrameID:             simFrame - 1,
		NumMarkerParticles:  marker,
		NumDiffuseParticles: diffuse,
		GridI:               gi,
		GridJ:               gj,
		GridK:               gk,
		EnableAPIC:          feats.APIC,
		EnableAge:           feats.Age,
		EnableColor:         feats.Color,
		EnableSourceID:      feats.SourceID,
	}

	// Phase 1: write every attribute file fully under a .tmp suffix.
	var tmpFiles []string
	for _, attr := range allAttrs {
		if !present(attr, feats) {
			continue
		}
		count := marker
		if attr.Diffuse() {
			count = diffuse
		}
		tmp := filepath.Join(slot, attr.FileName()+".tmp")
		if err := m.writeAttrFile(tmp, src, attr, count); err != nil {
			return fmt.Errorf("save: %s: %w", attr.FileName(), err)
		}
		tmpFiles = append(tmpFiles, tmp)
		manifest.SetFile(attr, attr.FileName())
	}

	// Phase 2: delete the previous commit, manifest first so a slot is
	// never observable with a manifest naming missing files.
	if err := m.deleteCommitted(slot); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if m.afterDelete != nil {
		if err := m.afterDelete(); err != nil {
			return fmt.Errorf("save: interrupted mid-commit: %w", err)
		}
	}

	// Phase 3: rename every .tmp into place, manifest last (the commit
	// marker).
	for _, tmp := range tmpFiles {
		final := strings.TrimSuffix(tmp, ".tmp")
		if err := atomic.ReplaceFile(tmp, final); err != nil {
			return fmt.Errorf("save: commit %s: %w", filepath.Base(final), err)
		}
	}
	data, err := manifest.Marshal()
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	manifestPath := filepath.Join(slot, ManifestFileName)
	if err := m.guard.CheckWrite(manifestPath); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := atomic.WriteFile(manifestPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save: commit manifest: %w", err)
	}

	if m.log != nil {
		m.log.Info("checkpoint committed",
			"frame", manifest.FrameID,
			"marker_particles", marker,
			"diffuse_particles", diffuse)
	}

	return m.retain(manifest)
}

// writeAttrFile streams one attribute into a temp file in bounded
// chunks.
func (m *Manager) writeAttrFile(path string, src Source, attr Attr, count int) error {
	if err := m.guard.CheckWrite(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	elem := attr.ElemSize()
	for start := 0; start < count; start += m.opts.ChunkElems {
		n := min(m.opts.ChunkElems, count-start)
		buf := make([]byte, n*elem)
		if err := src.ReadAttr(attr, start, n, buf); err != nil {
			return err
		}
		if _, err := f.Write(buf); err != nil {
			return err
		}
	}
	return f.Close()
}

// deleteCommitted removes the previously committed files from a slot.
// Every removal is guard-checked. Missing files are fine: a fresh slot
// has nothing to delete.
func (m *Manager) deleteCommitted(slot string) error {
	names := []string{ManifestFileName}
	for _, attr := range allAttrs {
		names = append(names, attr.FileName())
	}
	for _, name := range names {
		path := filepath.Join(slot, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := m.guard.CheckRemove(path); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("delete previous %s: %w", name, err)
		}
	}
	return nil
}

// retain copies the freshly committed default slot into a numbered slot
// when the retention policy asks for one.
func (m *Manager) retain(manifest *Manifest) error {
	if !m.opts.KeepSavestates || m.opts.Interval <= 0 {
		return nil
	}
	if manifest.FrameID < 0 || manifest.FrameID%m.opts.Interval != 0 {
		return nil
	}

	dst := m.NumberedSlot(manifest.FrameID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("retain: %w", err)
	}
	src := m.DefaultSlot()
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("retain: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return fmt.Errorf("retain %s: %w", e.Name(), err)
		}
	}
	if m.log != nil {
		m.log.Debug("savestate retained", "slot", filepath.Base(dst))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// Load restores a savestate into the sink. A non-negative savestateID
// selects the numbered slot for that frame, falling back to the default
// slot when the numbered directory does not exist. Returns the manifest
// so the caller can set the engine's frame cursor to FrameID+1.
//
// Returns ErrNoSavestate when no committed manifest exists anywhere -
// callers start fresh from frame zero in that case.
func (m *Manager) Load(sink Sink, savestateID int) (*Manifest, error) {
	slot := m.DefaultSlot()
	if savestateID >= 0 {
		numbered := m.NumberedSlot(savestateID)
		if _, err := os.Stat(filepath.Join(numbered, ManifestFileName)); err == nil {
			slot = numbered
		}
	}

	manifest, err := readManifest(filepath.Join(slot, ManifestFileName))
	if os.IsNotExist(err) {
		return nil, ErrNoSavestate
	}
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	if err := sink.Begin(manifest); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	for _, attr := range allAttrs {
		name := manifest.File(attr)
		if name == "" {
			continue
		}
		count := manifest.NumMarkerParticles
		if attr.Diffuse() {
			count = manifest.NumDiffuseParticles
		}
		if err := m.readAttrFile(filepath.Join(slot, name), sink, attr, count); err != nil {
			return nil, fmt.Errorf("load: %s: %w", name, err)
		}
	}
	return manifest, nil
}

// readAttrFile streams one attribute file into the sink at the reader's
// own chunk size.
func (m *Manager) readAttrFile(path string, sink Sink, attr Attr, count int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	elem := attr.ElemSize()
	for start := 0; start < count; start += m.opts.ChunkElems {
		n := min(m.opts.ChunkElems, count-start)
		buf := make([]byte, n*elem)
		if _, err := io.ReadFull(f, buf); err != nil {
			return err
		}
		if err := sink.WriteAttr(attr, start, n, buf); err != nil {
			return err
		}
	}
	return nil
}

// ListSlots returns the frame numbers of all numbered slots, ascending.
func (m *Manager) ListSlots() ([]int, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	var frames []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), slotPrefix) {
			continue
		}
		suffix := strings.TrimPrefix(e.Name(), slotPrefix)
		if len(suffix) != 6 {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		frames = append(frames, n)
	}
	sort.Ints(frames)
	return frames, nil
}

// PruneBeyond removes numbered slots whose frame exceeds the resume
// point, so resuming from an earlier frame cannot leave future
// savestates behind. Every removal is guard-checked.
func (m *Manager) PruneBeyond(frame int) error {
	slots, err := m.ListSlots()
	if err != nil {
		return err
	}
	for _, f := range slots {
		if f <= frame {
			continue
		}
		dir := m.NumberedSlot(f)
		if err := m.guard.CheckRemoveDir(dir); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("prune %s: %w", filepath.Base(dir), err)
		}
		if m.log != nil {
			m.log.Debug("pruned savestate", "frame", f)
		}
	}
	return nil
}
