package lock

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

func (m *Manager) snapshotPath(taskID string) string {
	return filepath.Join(m.docsRoot, ".state", taskID+".snapshot")
}

// snapshotRecord is the on-disk shape of a Snapshot: the checksum/version
// metadata alongside the raw bytes it was taken from.
type snapshotRecord struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checksum  string    `json:"checksum"`
	Data      string    `json:"data"` // raw task JSON, stored verbatim
}

// CreateSnapshot records the current task JSON and StateVersion so it can
// later be restored.
func (m *Manager) CreateSnapshot(taskID string, taskJSON []byte) (*model.Snapshot, error) {
	version, err := m.ReadVersion(taskID)
	if err != nil {
		return nil, err
	}

	sum := md5.Sum(taskJSON)
	rec := snapshotRecord{
		Version:   version,
		Timestamp: time.Now().UTC(),
		Checksum:  hex.EncodeToString(sum[:]),
		Data:      string(taskJSON),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, werrors.Wrap(werrors.CodeInternal, "encoding snapshot", err)
	}
	if err := writeFileAtomic(m.snapshotPath(taskID), data, 0o644); err != nil {
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "writing snapshot", err)
	}

	return &model.Snapshot{Version: rec.Version, Timestamp: rec.Timestamp, Checksum: rec.Checksum}, nil
}

// RestoreSnapshot rewinds the task JSON at taskPath and the StateVersion
// counter to the values recorded by the most recent CreateSnapshot call.
func (m *Manager) RestoreSnapshot(taskID, taskPath string) error {
	data, err := os.ReadFile(m.snapshotPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return werrors.New(werrors.CodeTaskNotFound, "no snapshot recorded for task "+taskID)
		}
		return werrors.Wrap(werrors.CodeFileSystemError, "reading snapshot", err)
	}
	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return werrors.Wrap(werrors.CodeInternal, "parsing snapshot", err)
	}

	if err := writeFileAtomic(taskPath, []byte(rec.Data), 0o644); err != nil {
		return werrors.Wrap(werrors.CodeFileSystemError, "restoring task file", err)
	}
	statePath := m.statePath(taskID)
	if err := writeFileAtomic(statePath, []byte(itoa(rec.Version)), 0o644); err != nil {
		return werrors.Wrap(werrors.CodeFileSystemError, "restoring state version", err)
	}
	return nil
}

func itoa(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}
