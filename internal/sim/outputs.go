package sim

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/natefinch/atomic"

	"github.com/roach88/bakeflow/internal/fsguard"
	"github.com/roach88/bakeflow/internal/geometry"
)

// Frame file names are fixed-width so lexical order is frame order.
const frameDigits = "%06d"

// StatsFileName is the aggregate stats document. It is keyed by frame
// number and merged incrementally from per-frame temp files, so a crash
// between frames loses at most one temp file, never the document.
const StatsFileName = "stats.json"

func frameFile(prefix string, frame int, ext string) string {
	return fmt.Sprintf(prefix+frameDigits+ext, frame)
}

// OutputWriter persists frame outputs under a single directory. All
// writes and removals go through the path guard.
type OutputWriter struct {
	dir        string
	guard      *fsguard.Guard
	whitewater bool
}

func NewOutputWriter(dir string, guard *fsguard.Guard, whitewater bool) (*OutputWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	guard.AddDir(dir)
	return &OutputWriter{dir: dir, guard: guard, whitewater: whitewater}, nil
}

// WriteFrame writes every output file for one completed frame.
func (w *OutputWriter) WriteFrame(frame int, out FrameOutput) error {
	if err := w.writeBounds(frame, out.BoundsMin, out.BoundsMax); err != nil {
		return err
	}
	if out.Surface != nil {
		blob := geometry.EncodeMesh(out.Surface)
		if err := w.writeFile(frameFile("surface", frame, ".bobj"), blob); err != nil {
			return err
		}
	}
	if w.whitewater {
		for _, wf := range []struct {
			prefix string
			pts    []geometry.Vec3
		}{
			{"foam", out.Foam},
			{"bubble", out.Bubble},
			{"spray", out.Spray},
		} {
			if err := w.writeFile(frameFile(wf.prefix, frame, ".wwp"), encodePoints(wf.pts)); err != nil {
				return err
			}
		}
	}
	return w.mergeStats(frame, out.Stats)
}

func (w *OutputWriter) writeBounds(frame int, min, max geometry.Vec3) error {
	line := fmt.Sprintf("%g %g %g %g %g %g\n", min.X, min.Y, min.Z, max.X, max.Y, max.Z)
	return w.writeFile(frameFile("bounds", frame, ".bbox"), []byte(line))
}

func (w *OutputWriter) writeFile(name string, data []byte) error {
	path := filepath.Join(w.dir, name)
	if err := w.guard.CheckWrite(path); err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// mergeStats writes the frame's stats as a temp file, folds it into the
// aggregate document, then removes the temp. Replaying the merge after a
// crash is idempotent.
func (w *OutputWriter) mergeStats(frame int, stats FrameStats) error {
	stats.Frame = frame
	tmpData, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	tmpPath := filepath.Join(w.dir, frameFile("framestats", frame, ".json"))
	if err := w.guard.CheckWrite(tmpPath); err != nil {
		return err
	}
	if err := atomic.WriteFile(tmpPath, bytes.NewReader(tmpData)); err != nil {
		return err
	}

	doc, err := w.readStatsDoc()
	if err != nil {
		return err
	}
	doc[strconv.Itoa(frame)] = stats
	docData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := w.writeFile(StatsFileName, docData); err != nil {
		return err
	}
	if err := w.guard.CheckRemove(tmpPath); err != nil {
		return err
	}
	return os.Remove(tmpPath)
}

func (w *OutputWriter) readStatsDoc() (map[string]FrameStats, error) {
	doc := make(map[string]FrameStats)
	data, err := os.ReadFile(filepath.Join(w.dir, StatsFileName))
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("stats document: %w", err)
	}
	return doc, nil
}

// PruneBeyond removes frame outputs numbered above the given frame and
// drops their stats entries. Called when resuming from a checkpoint so
// stale future frames cannot outlive the state that produced them.
func (w *OutputWriter) PruneBeyond(frame int) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, ok := frameNumber(e.Name())
		if !ok || n <= frame {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if err := w.guard.CheckRemove(path); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}

	doc, err := w.readStatsDoc()
	if err != nil {
		return err
	}
	changed := false
	for key := range doc {
		n, err := strconv.Atoi(key)
		if err == nil && n > frame {
			delete(doc, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	docData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return w.writeFile(StatsFileName, docData)
}

// frameNumber extracts the trailing 6-digit frame number from a frame
// file name like surface000042.bobj.
func frameNumber(name string) (int, bool) {
	base := name[:len(name)-len(filepath.Ext(name))]
	if len(base) < 6 {
		return 0, false
	}
	n, err := strconv.Atoi(base[len(base)-6:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func encodePoints(pts []geometry.Vec3) []byte {
	buf := make([]byte, 4+12*len(pts))
	binary.LittleEndian.PutUint32(buf, uint32(len(pts)))
	off := 4
	for _, p := range pts {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(p.Z))
		off += 12
	}
	return buf
}

// sortedFrameFiles lists frame-numbered files with the given prefix in
// frame order.
func (w *OutputWriter) sortedFrameFiles(prefix string) ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > len(prefix) && e.Name()[:len(prefix)] == prefix {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
