package localstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dragoneye/internal/core/domain"
	"dragoneye/internal/core/ports"
)

const (
	taskFile    = "task.yaml"
	resultsFile = "results.json"
)

// LocalStorage implements ports.Journal on the local filesystem.
type LocalStorage struct {
	BaseDir string
}

var _ ports.Journal = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// SaveTask writes the task record, creating the task directory if needed.
func (s *LocalStorage) SaveTask(ctx context.Context, rec *domain.TaskRecord) error {
	dir, err := s.initTask(rec.TaskID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode task record: %w", err)
	}
	path := filepath.Join(dir, taskFile)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", taskFile, err)
	}
	return nil
}

// LoadTask reads a task record saved by SaveTask.
func (s *LocalStorage) LoadTask(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	if err := checkTaskID(taskID); err != nil {
		return nil, err
	}
	path := filepath.Join(s.GetTaskPath(taskID), taskFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task record %s: %w", path, err)
	}
	var rec domain.TaskRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode task record %s: %w", path, err)
	}
	return &rec, nil
}

// SaveResults saves the raw results document.
func (s *LocalStorage) SaveResults(ctx context.Context, taskID string, data []byte) (string, error) {
	dir, err := s.initTask(taskID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, resultsFile)
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", resultsFile, err)
	}
	return path, nil
}

// GetTaskPath returns the directory of a task.
func (s *LocalStorage) GetTaskPath(taskID string) string {
	return filepath.Join(s.BaseDir, "tasks", taskID)
}

func (s *LocalStorage) initTask(taskID string) (string, error) {
	if err := checkTaskID(taskID); err != nil {
		return "", err
	}
	path := s.GetTaskPath(taskID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create task directory %s: %w", path, err)
	}
	return path, nil
}

// Task ids come from the server and become directory names.
func checkTaskID(taskID string) error {
	if taskID == "" || taskID == "." || taskID == ".." || strings.ContainsAny(taskID, `/\`) {
		return fmt.Errorf("%w: invalid task id %q", domain.ErrUsage, taskID)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
