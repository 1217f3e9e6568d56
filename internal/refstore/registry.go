// Package refstore manages the YAML-based medication reference registry:
// expected barcodes, reference aspect ratios and reference image assets.
package refstore

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Medication describes one medication's stored reference data.
type Medication struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	ExpectedBarcode string   `yaml:"expected_barcode"`
	AspectRatio     *float64 `yaml:"aspect_ratio"`
	ReferenceImage  string   `yaml:"reference_image"`
	Histogram       string   `yaml:"histogram"`
}

// File is the top-level YAML structure.
type File struct {
	Medications []Medication `yaml:"medications"`
}

// Registry holds loaded medications, keyed by ID. Safe for concurrent reads
// while a reload swaps the contents.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Medication
	path string
}

// Load reads the YAML file at path and returns a Registry. A missing file
// yields an empty Registry (not an error) so a fresh install starts clean.
func Load(path string) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Medication), path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file, replacing the in-memory contents
// atomically. Used by the file watcher on registry edits.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.byID = make(map[string]*Medication)
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read registry: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse registry: %w", err)
	}

	byID := make(map[string]*Medication, len(f.Medications))
	for i := range f.Medications {
		m := &f.Medications[i]
		if m.ID == "" {
			return fmt.Errorf("parse registry: medication %q has no id", m.Name)
		}
		byID[m.ID] = m
	}

	r.mu.Lock()
	r.byID = byID
	r.mu.Unlock()
	return nil
}

// Get returns a medication by ID. Returns (nil, false) if not found.
func (r *Registry) Get(id string) (*Medication, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// IDs returns a sorted list of registered medication IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered medications.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ExpectedBarcode implements signals.ReferenceProvider.
func (r *Registry) ExpectedBarcode(medicationID string) (string, bool) {
	m, ok := r.Get(medicationID)
	if !ok || m.ExpectedBarcode == "" {
		return "", false
	}
	return m.ExpectedBarcode, true
}

// AspectRatio implements signals.ReferenceProvider. Nil means no reference
// image geometry is stored for the medication.
func (r *Registry) AspectRatio(medicationID string) *float64 {
	m, ok := r.Get(medicationID)
	if !ok {
		return nil
	}
	return m.AspectRatio
}
