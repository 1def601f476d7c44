// Package history persists a durable, queryable audit trail of build
// runs — distinct from the Registry, which only ever remembers the last
// snapshot needed for incremental decisions. Run and target-outcome
// records live in their own bbolt buckets.
package history

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketRuns    = []byte("runs")
	bucketTargets = []byte("targets")
)

// RunRecord is one build invocation.
type RunRecord struct {
	ID        string
	Project   string
	Targets   []string
	StartTime time.Time
	EndTime   time.Time
	Success   bool
}

// TargetOutcome is one target's result within a run.
type TargetOutcome struct {
	RunID    string
	Target   string
	Compiled bool
	Linked   bool
	Skipped  uint32
	Duration time.Duration
}

// Store wraps a bbolt database file.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRuns); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketTargets)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// StartRun records a new run before the driver begins.
func (s *Store) StartRun(rec RunRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRuns).Put([]byte(rec.ID), data)
	})
}

// FinishRun updates a run's end time and overall success flag.
func (s *Store) FinishRun(id string, end time.Time, success bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("history: run %s not found", id)
		}
		var rec RunRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		rec.EndTime = end
		rec.Success = success
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
}

// RecordTarget stores one target's outcome for a run.
func (s *Store) RecordTarget(outcome TargetOutcome) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(outcome)
		if err != nil {
			return err
		}
		key := []byte(outcome.RunID + "/" + outcome.Target)
		return tx.Bucket(bucketTargets).Put(key, data)
	})
}

// GetRun retrieves a run record by id.
func (s *Store) GetRun(id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("history: run %s not found", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentRuns returns up to limit run records, most recently started
// first.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
