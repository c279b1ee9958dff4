package sessionlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// Session status values recorded in the manifest.
const (
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// PlanEntry is one planned trial as recorded in the manifest.
type PlanEntry struct {
	Trial     int    `json:"trial"`
	Condition string `json:"condition"`
	File      string `json:"file"`
}

// Manifest is the JSON sidecar describing a session. The CSV log stays the
// record of truth; the manifest adds the planned order and how the session
// ended.
type Manifest struct {
	SessionID    string      `json:"session_id"`
	Participant  string      `json:"participant"`
	LogFile      string      `json:"log_file"`
	Columns      []string    `json:"columns"`
	Plan         []PlanEntry `json:"plan"`
	PlanDigest   string      `json:"plan_digest"`
	Status       string      `json:"status"`
	TrialsLogged int         `json:"trials_logged"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      *time.Time  `json:"ended_at,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// NewManifest builds a running-state manifest with a fresh session id.
func NewManifest(participant, logFile string, schema Schema, plan []PlanEntry, now time.Time) (*Manifest, error) {
	digest, err := PlanDigest(plan)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		SessionID:   uuid.NewString(),
		Participant: participant,
		LogFile:     logFile,
		Columns:     append([]string(nil), schema.Columns...),
		Plan:        plan,
		PlanDigest:  digest,
		Status:      StatusRunning,
		StartedAt:   now.UTC(),
	}, nil
}

// PlanDigest returns the sha256 of the RFC 8785 canonical JSON of plan.
func PlanDigest(plan []PlanEntry) (string, error) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize plan: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Finish stamps the terminal status.
func (m *Manifest) Finish(status string, trialsLogged int, cause error, now time.Time) {
	ended := now.UTC()
	m.Status = status
	m.TrialsLogged = trialsLogged
	m.EndedAt = &ended
	if cause != nil {
		m.Error = cause.Error()
	}
}

// Save writes the manifest atomically.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'), 0o644)
}

// LoadManifest reads a manifest written by Save.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// ManifestName returns the manifest file name for a participant.
func ManifestName(participant string) string {
	return participant + "_session.json"
}

func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	tmp, err := os.CreateTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false
	syncDir(parent)
	return nil
}
