package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/wesleyorama2/stampede/internal/performance/scenario"
)

// BucketRuns holds one entry per scenario run, keyed by a time-ordered id.
const BucketRuns = "runs"

// ErrRunNotFound is returned by Get for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// HistoryItem is a stored scenario run.
type HistoryItem struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Target   string           `json:"target"`
	SavedAt  time.Time        `json:"savedAt"`
	Report   *scenario.Report `json:"report"`
	Failed   []string         `json:"failed,omitempty"`
	Requests int64            `json:"requests"`
}

// Store persists run history in a bbolt file.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens or creates the history file at path.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the history file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a run and returns its id. Ids sort in save order.
func (s *Store) Save(name, target string, report *scenario.Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	item := HistoryItem{
		ID:       id.String(),
		Name:     name,
		Target:   target,
		SavedAt:  time.Now(),
		Report:   report,
		Failed:   report.FailedStages(),
		Requests: report.TotalRequests(),
	}

	data, err := json.Marshal(item)
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).Put([]byte(item.ID), data)
	})
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]HistoryItem, error) {
	var items []HistoryItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("corrupt history entry %s: %w", k, err)
			}
			items = append(items, item)
			if limit > 0 && len(items) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns a single run.
func (s *Store) Get(id string) (*HistoryItem, error) {
	var item HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketRuns)).Get([]byte(id))
		if v == nil {
			return ErrRunNotFound
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
