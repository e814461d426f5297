// Package discovery loads service descriptor batches from JSON manifests.
// It is the pipeline's entry gate: everything it returns has passed
// validation, so downstream stages trust descriptors unconditionally.
package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/LoomworksAI/apiloom/engine/domain"
)

// Loader reads descriptor manifests. Invalid descriptors are skipped and
// logged rather than failing the batch; duplicate ids across a batch are a
// hard error since they would silently supersede each other downstream.
type Loader struct {
	logger *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadFile reads one manifest: a JSON array of descriptors. Descriptors
// failing validation are dropped with a warning; a duplicate id among the
// valid ones fails the whole file.
func (l *Loader) LoadFile(path string) ([]domain.ServiceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var raw []domain.ServiceDescriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	valid := make([]domain.ServiceDescriptor, 0, len(raw))
	for _, d := range raw {
		if err := domain.ValidateDescriptor(d); err != nil {
			l.logger.Warn("skipping invalid descriptor", "file", path, "id", d.ID, "error", err)
			continue
		}
		valid = append(valid, d)
	}

	if err := domain.ValidateBatch(valid); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return valid, nil
}

// LoadDir loads every *.json manifest directly under dir, in lexical
// filename order, and merges them into one batch. A duplicate id across
// files is a hard error.
func (l *Loader) LoadDir(dir string) ([]domain.ServiceDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var batch []domain.ServiceDescriptor
	for _, name := range names {
		descriptors, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		batch = append(batch, descriptors...)
	}

	if err := domain.ValidateBatch(batch); err != nil {
		return nil, fmt.Errorf("manifest dir %s: %w", dir, err)
	}
	l.logger.Info("descriptors loaded", "dir", dir, "files", len(names), "descriptors", len(batch))
	return batch, nil
}

// IsNotExist reports whether the load failed because the manifest path is
// absent, for callers that treat that as an empty batch.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
