package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Registry is the supervisor's table of processes it started, persisted to
// disk so a later invocation can verify PID files before signaling. Several
// harness invocations may share the file; each change holds an exclusive
// flock on a sidecar lock file while it re-reads, applies and rewrites the
// snapshot.
type Registry struct {
	path string

	mu      sync.Mutex
	records map[string]*ProcessRecord
}

// LoadRegistry reads the snapshot at path. A missing or corrupt snapshot
// starts an empty registry; corrupt content is reported alongside it.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, records: make(map[string]*ProcessRecord)}
	if path == "" {
		return r, nil
	}

	records, err := readRecords(path)
	if err != nil {
		return r, err
	}
	r.records = records
	return r, nil
}

// Get returns a copy of the record for name.
func (r *Registry) Get(name string) *ProcessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Put stores rec and persists the registry.
func (r *Registry) Put(rec *ProcessRecord) error {
	cp := *rec
	return r.update(func(records map[string]*ProcessRecord) {
		records[cp.Name] = &cp
	})
}

// Delete drops the record for name and persists the registry.
func (r *Registry) Delete(name string) error {
	return r.update(func(records map[string]*ProcessRecord) {
		delete(records, name)
	})
}

// Records returns copies of all records sorted by name.
func (r *Registry) Records() []ProcessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ProcessRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LockFile returns the path of the sidecar file writers lock.
func (r *Registry) LockFile() string {
	return r.path + ".lock"
}

func (r *Registry) update(apply func(map[string]*ProcessRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		apply(r.records)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	lock, err := os.OpenFile(r.LockFile(), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open registry lock: %w", err)
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock registry: %w", err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	current, err := readRecords(r.path)
	if err != nil {
		// unreadable snapshot is replaced
		current = make(map[string]*ProcessRecord)
	}
	apply(current)
	if err := writeRecords(r.path, current); err != nil {
		return err
	}
	r.records = current
	return nil
}

func readRecords(path string) (map[string]*ProcessRecord, error) {
	records := make(map[string]*ProcessRecord)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return records, fmt.Errorf("failed to read registry: %w", err)
	}

	var list []*ProcessRecord
	if err := json.Unmarshal(data, &list); err != nil {
		return records, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	for _, rec := range list {
		if rec != nil && rec.Name != "" {
			records[rec.Name] = rec
		}
	}
	return records, nil
}

func writeRecords(path string, records map[string]*ProcessRecord) error {
	list := make([]*ProcessRecord, 0, len(records))
	for _, rec := range records {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
