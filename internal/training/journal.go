package training

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// Run outcomes
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Data sources of a run
const (
	SourceDatabase  = "database"
	SourceSynthetic = "synthetic"
)

// TrainingRun is the journal entry of one training attempt.
type TrainingRun struct {
	ID              string             `json:"id"`
	Model           string             `json:"model"`
	Version         string             `json:"version,omitempty"`
	Status          string             `json:"status"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	ArtifactPath    string             `json:"artifact_path,omitempty"`
	Error           string             `json:"error,omitempty"`
	DataSource      string             `json:"data_source,omitempty"`
	Rows            int                `json:"rows"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	DurationSeconds float64            `json:"duration_seconds"`
}

// Journal keeps the history of training runs.
type Journal interface {
	Record(ctx context.Context, run TrainingRun) error
	// List returns runs newest first. An empty model lists every model;
	// limit <= 0 means no limit.
	List(ctx context.Context, model string, limit int) ([]TrainingRun, error)
}

// NopJournal forgets every run.
type NopJournal struct{}

func (NopJournal) Record(context.Context, TrainingRun) error { return nil }
func (NopJournal) List(context.Context, string, int) ([]TrainingRun, error) {
	return []TrainingRun{}, nil
}

// BadgerJournal stores runs in BadgerDB under
// run/{model}/{started_unix_nano}/{id}.
type BadgerJournal struct {
	db *badger.DB
}

// NewBadgerJournal opens a journal at path. An empty path keeps the
// journal in memory.
func NewBadgerJournal(path string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening training journal: %w", err)
	}
	return &BadgerJournal{db: db}, nil
}

func runKey(run TrainingRun) []byte {
	return []byte(fmt.Sprintf("run/%s/%020d/%s", run.Model, run.StartedAt.UnixNano(), run.ID))
}

func (j *BadgerJournal) Record(ctx context.Context, run TrainingRun) error {
	val, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run), val)
	})
}

// List returns up to limit runs, newest first. An empty model matches all.
func (j *BadgerJournal) List(ctx context.Context, model string, limit int) ([]TrainingRun, error) {
	prefix := []byte("run/")
	if model != "" {
		prefix = []byte("run/" + model + "/")
	}

	runs := []TrainingRun{}
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var run TrainingRun
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &run)
			})
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(a, b int) bool { return runs[a].StartedAt.After(runs[b].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (j *BadgerJournal) Close() error {
	return j.db.Close()
}
