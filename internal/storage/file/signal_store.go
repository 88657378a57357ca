// Package file implements storage.SignalStore on a single JSON document so
// one-shot CLI runs share a ledger without a database.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/storage"
	"fx-signal-lab/internal/storage/memory"
	"fx-signal-lab/internal/storage/record"
)

// document is the on-disk layout.
type document struct {
	Signals []record.Signal `json:"signals"`
	Tasks   []record.Task   `json:"tasks"`
}

// SignalStore reloads the document on every call and rewrites it after every
// mutation. Writers in separate processes are not coordinated; run one writer
// per file.
type SignalStore struct {
	mu   sync.Mutex
	path string
}

// NewSignalStore opens the store at path. A missing file is an empty ledger;
// an unreadable one is an error.
func NewSignalStore(path string) (*SignalStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("signal file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create signal file directory: %w", err)
	}

	s := &SignalStore{path: path}
	if _, err := s.load(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *SignalStore) Path() string {
	return s.path
}

func (s *SignalStore) Create(ctx context.Context, sig *domain.Signal, task *domain.VerificationTask) error {
	return s.update(ctx, func(mem *memory.SignalStore) error {
		return mem.Create(ctx, sig, task)
	})
}

func (s *SignalStore) GetByID(ctx context.Context, id string) (*domain.Signal, error) {
	var sig *domain.Signal
	err := s.view(ctx, func(mem *memory.SignalStore) (err error) {
		sig, err = mem.GetByID(ctx, id)
		return err
	})
	return sig, err
}

func (s *SignalStore) GetTask(ctx context.Context, signalID string) (*domain.VerificationTask, error) {
	var task *domain.VerificationTask
	err := s.view(ctx, func(mem *memory.SignalStore) (err error) {
		task, err = mem.GetTask(ctx, signalID)
		return err
	})
	return task, err
}

func (s *SignalStore) List(ctx context.Context, filter storage.SignalFilter) ([]*domain.Signal, error) {
	var sigs []*domain.Signal
	err := s.view(ctx, func(mem *memory.SignalStore) (err error) {
		sigs, err = mem.List(ctx, filter)
		return err
	})
	return sigs, err
}

func (s *SignalStore) GetCompleted(ctx context.Context, pair string) ([]*domain.Signal, error) {
	var sigs []*domain.Signal
	err := s.view(ctx, func(mem *memory.SignalStore) (err error) {
		sigs, err = mem.GetCompleted(ctx, pair)
		return err
	})
	return sigs, err
}

func (s *SignalStore) GetDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.VerificationTask, error) {
	var tasks []*domain.VerificationTask
	err := s.view(ctx, func(mem *memory.SignalStore) (err error) {
		tasks, err = mem.GetDueTasks(ctx, now, limit)
		return err
	})
	return tasks, err
}

func (s *SignalStore) MarkOpen(ctx context.Context, id string, r domain.Resolution) error {
	return s.update(ctx, func(mem *memory.SignalStore) error {
		return mem.MarkOpen(ctx, id, r)
	})
}

func (s *SignalStore) Complete(ctx context.Context, id string, r domain.Resolution) error {
	return s.update(ctx, func(mem *memory.SignalStore) error {
		return mem.Complete(ctx, id, r)
	})
}

func (s *SignalStore) view(ctx context.Context, fn func(*memory.SignalStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(mem)
}

// update saves only when fn succeeds.
func (s *SignalStore) update(ctx context.Context, fn func(*memory.SignalStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(mem); err != nil {
		return err
	}
	return s.save(mem)
}

func (s *SignalStore) load(ctx context.Context) (*memory.SignalStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mem := memory.NewSignalStore()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return mem, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read signal file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return mem, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode signal file %s: %w", s.path, err)
	}

	tasks := make(map[string]*domain.VerificationTask, len(doc.Tasks))
	for _, t := range doc.Tasks {
		tasks[t.SignalID] = t.Domain()
	}
	for _, r := range doc.Signals {
		task, ok := tasks[r.ID]
		if !ok {
			return nil, fmt.Errorf("signal file %s: signal %s has no verification task", s.path, r.ID)
		}
		if err := mem.Create(ctx, r.Domain(), task); err != nil {
			return nil, fmt.Errorf("signal file %s: load %s: %w", s.path, r.ID, err)
		}
	}
	return mem, nil
}

// save replaces the file through a rename so readers never see a partial write.
func (s *SignalStore) save(mem *memory.SignalStore) error {
	sigs, tasks := mem.Snapshot()
	doc := document{
		Signals: make([]record.Signal, 0, len(sigs)),
		Tasks:   make([]record.Task, 0, len(tasks)),
	}
	for _, sig := range sigs {
		doc.Signals = append(doc.Signals, record.FromSignal(sig))
	}
	for _, t := range tasks {
		doc.Tasks = append(doc.Tasks, record.FromTask(t))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode signal file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp signal file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write signal file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync signal file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close signal file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace signal file: %w", err)
	}
	return nil
}

var _ storage.SignalStore = (*SignalStore)(nil)
