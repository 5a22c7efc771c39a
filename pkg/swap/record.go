package swap

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/cuemby/molt/pkg/atomicfile"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/types"
)

// State files at the device root
const (
	VersionFile = "version.json"
	ErrorFile   = "ota_error.json"

	// historyFileName mirrors history.HistoryFile; the sweep must never
	// back up the health store, and swap cannot import history
	historyFileName = "ota_history.db"
)

// ReadVersion loads the installed-version record. A missing record
// returns (nil, nil); a corrupt record is reported as a state error so
// the caller can treat the device as unversioned.
func ReadVersion(root string) (*types.VersionRecord, error) {
	data, err := os.ReadFile(filepath.Join(root, VersionFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	var rec types.VersionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrState, "corrupt %s: %v", VersionFile, err)
	}
	return &rec, nil
}

// WriteVersion atomically persists the installed-version record. This is
// the finalization step: the record only appears after every rename of
// the swap is durable.
func WriteVersion(root string, rec types.VersionRecord) error {
	return atomicfile.WriteJSON(filepath.Join(root, VersionFile), rec)
}

// ErrorRecord captures why a swap or recovery degraded, for the external
// scheduler to inspect.
type ErrorRecord struct {
	AttemptID  string    `json:"attempt_id,omitempty"`
	Step       string    `json:"step"`
	Cause      string    `json:"cause"`
	StepErrors []string  `json:"step_errors,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// writeErrorRecord persists the error record best-effort; a device that
// cannot write it still completes rollback.
func writeErrorRecord(root string, rec ErrorRecord) {
	rec.Timestamp = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	path := filepath.Join(root, ErrorFile)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		logger := log.WithComponent("swap")
		logger.Warn().Err(err).Msg("Could not persist error record")
	}
}
