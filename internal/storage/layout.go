package storage

import (
	"os"
	"path/filepath"
)

// Layout places every task's downloads in its own directory under a root,
// so files from concurrent tasks never mix.
type Layout struct {
	root string
}

func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, err
	}
	return Layout{root: abs}, nil
}

// Root returns the absolute download root.
func (l Layout) Root() string {
	return l.root
}

// TaskDir returns the absolute path to the task's download directory
func (l Layout) TaskDir(taskID string) string {
	return filepath.Join(l.root, taskID)
}

// EnsureTaskDir creates the task directory if it doesn't exist
func (l Layout) EnsureTaskDir(taskID string) (string, error) {
	path := l.TaskDir(taskID)
	return path, os.MkdirAll(path, 0755)
}

// Key is the bucket key of a file in the task's directory.
func Key(taskID, filename string) string {
	return taskID + "/" + filename
}
