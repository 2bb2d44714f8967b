// Package artifacts owns the per-run output directory: progress log, status
// snapshots, copied detector logs and the metrics result document.
package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
)

// RunDir is one run's artifact directory under the configured output root.
type RunDir struct {
	path     string
	runID    string
	progress *os.File
}

// Create makes `<base>/<runID>/` and opens the replay progress log inside it.
func Create(baseDir, runID string) (*RunDir, error) {
	path := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	progress, err := os.OpenFile(filepath.Join(path, "replay_progress.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open progress log: %w", err)
	}
	return &RunDir{path: path, runID: runID, progress: progress}, nil
}

func (r *RunDir) Path() string {
	return r.path
}

// AppendProgress writes one JSON line to the replay progress log.
func (r *RunDir) AppendProgress(entry any) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Warn("cannot marshal progress entry", "error", err)
		return
	}
	if _, err := r.progress.Write(append(data, '\n')); err != nil {
		log.Warn("cannot append to progress log", "error", err)
	}
}

// WriteSnapshot persists a labeled detector status snapshot, e.g.
// status_before.json or status_at_5000.json.
func (r *RunDir) WriteSnapshot(label string, snapshot domain.StatusSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", label, err)
	}
	return os.WriteFile(filepath.Join(r.path, label+".json"), data, 0o644)
}

// WriteMetrics writes the final result document atomically (temp + rename)
// so a concurrent reader never sees a partial metrics.json.
func (r *RunDir) WriteMetrics(payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	tmp, err := os.CreateTemp(r.path, "metrics-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create metrics temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write metrics temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close metrics temp file: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(r.path, "metrics.json"))
}

// CopyDetectorLog snapshots the detector's own log into the run directory
// for troubleshooting. Missing source is not an error; the run may have
// been configured without one.
func (r *RunDir) CopyDetectorLog(src string) error {
	if src == "" {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("detector log not found, skipping copy", "path", src)
			return nil
		}
		return fmt.Errorf("open detector log: %w", err)
	}
	defer in.Close()

	out, err := os.Create(filepath.Join(r.path, filepath.Base(src)))
	if err != nil {
		return fmt.Errorf("create detector log copy: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy detector log: %w", err)
	}
	return nil
}

func (r *RunDir) Close() error {
	return r.progress.Close()
}
