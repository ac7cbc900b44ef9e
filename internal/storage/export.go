package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	RunMetadata
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// ExportJSON writes a run's metadata and full trace as one JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	tr, err := s.LoadTrace(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		RunMetadata: *meta,
		Columns:     tr.Columns,
		Rows:        tr.Rows,
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
