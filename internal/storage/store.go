package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// ErrNoRun is returned for an unknown run ID.
var ErrNoRun = errors.New("storage: no such run")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Dir() string { return s.baseDir }

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Mode      string             `json:"mode"`
	Endpoint  string             `json:"endpoint"`
	Timestamp time.Time          `json:"timestamp"`
	Finished  time.Time          `json:"finished,omitempty"`
	Period    float64            `json:"period_s"`
	Ticks     int                `json:"ticks"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Columns of trace.csv.
var Columns = []string{
	"time",
	"bt11_degc",
	"bt12_degc",
	"expected_bt12_degc",
	"heater_kw",
	"pump_pa",
	"heater_flow_kg_s",
	"clamped",
}

func (s *Store) runDir(id string) string { return filepath.Join(s.baseDir, id) }

func (s *Store) writeMeta(meta RunMetadata) error {
	f, err := os.Create(filepath.Join(s.runDir(meta.ID), "metadata.json"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// newID picks a run directory name that does not exist yet.
func (s *Store) newID(mode string, ts time.Time) (string, error) {
	base := fmt.Sprintf("%s_%s", mode, ts.Format("20060102T150405"))
	id := base
	for n := 1; ; n++ {
		err := os.Mkdir(s.runDir(id), 0755)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoRun, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// Trace is a loaded trace.csv, one row per control tick.
type Trace struct {
	Columns []string
	Rows    [][]float64
}

// Column returns the named column, or nil.
func (t *Trace) Column(name string) []float64 {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		}
	}
	return out
}

func (s *Store) LoadTrace(runID string) (*Trace, error) {
	file, err := os.Open(filepath.Join(s.runDir(runID), "trace.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoRun, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Trace{Columns: Columns}, nil
	}

	tr := &Trace{
		Columns: records[0],
		Rows:    make([][]float64, 0, len(records)-1),
	}
	for _, record := range records[1:] {
		row := make([]float64, 0, len(record))
		for _, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				break
			}
			row = append(row, v)
		}
		// a row cut short by a crash is dropped
		if len(row) != len(tr.Columns) {
			continue
		}
		tr.Rows = append(tr.Rows, row)
	}
	return tr, nil
}
