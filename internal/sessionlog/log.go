// Package sessionlog persists trial outcomes as CSV rows. Every row is
// written with a single write followed by fsync, and a failed write is rolled
// back, so a crash after trial k leaves exactly k intact rows behind.
package sessionlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/satindergrewal/tonalstudy/internal/fault"
)

// Column names.
const (
	ColTrialNum      = "trial_num"
	ColCondition     = "condition"
	ColFile          = "file"
	ColGender        = "gender"
	ColAge           = "age"
	ColEducation     = "education"
	ColMusicEdu      = "music_edu"
	ColMusicYears    = "music_years"
	ColInstrument    = "instrument"
	ColListeningFreq = "listening_freq"
	ColPleasant      = "pleasant"
	ColArousal       = "arousal"
	ColEmotions      = "emotions"
	ColVideo         = "video"
)

var (
	ErrWriteFailed = fault.New(fault.KindLog, fault.CodeWriteFailed, "session log write failed")
	ErrOutOfOrder  = fault.New(fault.KindLog, fault.CodeOutOfOrder, "trial rows must be appended in order")
)

// Schema is the fixed column layout of one session's log.
type Schema struct {
	Columns      []string
	Demographics bool
}

// MinimalSchema logs only which stimulus ran in which trial.
func MinimalSchema() Schema {
	return Schema{Columns: []string{ColTrialNum, ColCondition, ColFile}}
}

// ExtendedSchema adds the demographics pseudo-row and per-trial ratings.
func ExtendedSchema() Schema {
	return Schema{
		Columns: []string{
			ColTrialNum, ColCondition, ColFile,
			ColGender, ColAge, ColEducation, ColMusicEdu, ColMusicYears, ColInstrument, ColListeningFreq,
			ColPleasant, ColArousal, ColEmotions,
		},
		Demographics: true,
	}
}

// WithVideo returns a copy of s with the capture artifact column appended.
func (s Schema) WithVideo() Schema {
	cols := make([]string, 0, len(s.Columns)+1)
	cols = append(cols, s.Columns...)
	cols = append(cols, ColVideo)
	return Schema{Columns: cols, Demographics: s.Demographics}
}

// Record is one completed trial.
type Record struct {
	TrialNum  int
	Condition string
	File      string
	Responses map[string]string // keyed by column name
	Artifact  string            // capture artifact path, empty when none
}

// file is the subset of *os.File the log needs.
type file interface {
	Write(p []byte) (int, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

// Log is an open session log. It is owned by a single goroutine.
type Log struct {
	path   string
	schema Schema
	f      file

	size         int64
	lastTrial    int
	demographics bool
	closed       bool
}

// Open creates path, writes the header row and keeps the file open for
// appends. It refuses to reuse an existing file.
func Open(path string, schema Schema) (*Log, error) {
	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("session log schema has no columns")
	}
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, fault.Wrap(fmt.Errorf("create data directory: %w", err), fault.KindLog, fault.CodeWriteFailed)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fault.Wrap(fmt.Errorf("create session log: %w", err), fault.KindLog, fault.CodeWriteFailed)
	}
	l := &Log{path: path, schema: schema, f: f}
	if err := l.writeRow(schema.Columns); err != nil {
		f.Close()
		return nil, err
	}
	syncDir(parent)
	return l, nil
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Schema returns the columns fixed at Open.
func (l *Log) Schema() Schema { return l.schema }

// LastTrial returns the trial number of the most recent row (0 if none).
func (l *Log) LastTrial() int { return l.lastTrial }

// WriteDemographics writes the trial_num=0 pseudo-row. Extended schema only,
// once, before any trial.
func (l *Log) WriteDemographics(answers map[string]string) error {
	if !l.schema.Demographics {
		return fmt.Errorf("schema has no demographics row")
	}
	if l.demographics || l.lastTrial > 0 {
		return fault.Wrap(errors.New("demographics row must come first and only once"), fault.KindLog, fault.CodeOutOfOrder)
	}
	row := make([]string, len(l.schema.Columns))
	for i, col := range l.schema.Columns {
		switch col {
		case ColTrialNum:
			row[i] = "0"
		case ColCondition, ColFile, ColVideo:
		default:
			row[i] = answers[col]
		}
	}
	if err := l.writeRow(row); err != nil {
		return err
	}
	l.demographics = true
	return nil
}

// Append writes one trial row. Either the whole row reaches stable storage
// or the file is left as it was.
func (l *Log) Append(rec Record) error {
	if l.closed {
		return fault.Wrap(errors.New("session log is closed"), fault.KindLog, fault.CodeWriteFailed)
	}
	if rec.TrialNum != l.lastTrial+1 {
		return fmt.Errorf("trial %d after %d: %w", rec.TrialNum, l.lastTrial, ErrOutOfOrder)
	}
	row := make([]string, len(l.schema.Columns))
	for i, col := range l.schema.Columns {
		switch col {
		case ColTrialNum:
			row[i] = strconv.Itoa(rec.TrialNum)
		case ColCondition:
			row[i] = rec.Condition
		case ColFile:
			row[i] = rec.File
		case ColVideo:
			row[i] = rec.Artifact
		default:
			row[i] = rec.Responses[col]
		}
	}
	if err := l.writeRow(row); err != nil {
		return err
	}
	l.lastTrial = rec.TrialNum
	return nil
}

// Close releases the file handle. Safe to call more than once.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}

func (l *Log) writeRow(fields []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return fault.Wrap(fmt.Errorf("encode row: %w", err), fault.KindLog, fault.CodeWriteFailed)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fault.Wrap(fmt.Errorf("encode row: %w", err), fault.KindLog, fault.CodeWriteFailed)
	}

	payload := buf.Bytes()
	n, err := l.f.Write(payload)
	if err == nil && n != len(payload) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(payload))
	}
	if err == nil {
		err = l.f.Sync()
	}
	if err != nil {
		if truncErr := l.f.Truncate(l.size); truncErr != nil {
			err = fmt.Errorf("%w (rollback failed: %v)", err, truncErr)
		}
		return fmt.Errorf("%s: %v: %w", l.path, err, ErrWriteFailed)
	}
	l.size += int64(n)
	return nil
}

// ReadAll parses a session log, header included.
func ReadAll(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csv.NewReader(f).ReadAll()
}

// ParticipantID derives the session's participant identifier from an
// operator ordinal, or from the wall clock when the ordinal is empty.
func ParticipantID(ordinal string, now time.Time) string {
	if ordinal != "" {
		return "participant_" + ordinal
	}
	return fmt.Sprintf("participant_%d", now.Unix())
}

// FileName returns the CSV file name for a participant.
func FileName(participant string) string {
	return participant + "_data.csv"
}

func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}
