package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/san-kum/heaterloop/internal/loop"
)

// flushEvery bounds how many rows a crash can lose.
const flushEvery = 10

// Recorder streams committed control ticks into a run directory.
type Recorder struct {
	store *Store

	mu     sync.Mutex
	meta   RunMetadata
	file   *os.File
	w      *csv.Writer
	err    error
	closed bool
}

// Start creates a run directory holding metadata.json and the trace header.
func (s *Store) Start(meta RunMetadata) (*Recorder, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	id, err := s.newID(meta.Mode, meta.Timestamp)
	if err != nil {
		return nil, err
	}
	meta.ID = id

	if err := s.writeMeta(meta); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(s.runDir(id), "trace.csv"))
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &Recorder{store: s, meta: meta, file: f, w: w}, nil
}

func (r *Recorder) ID() string { return r.meta.ID }

func (r *Recorder) OnTick(rec loop.Record) {
	clamped := 0.0
	if rec.Result.Clamped {
		clamped = 1
	}
	vals := []float64{
		rec.Time,
		rec.Sample.Inlet.Celsius(),
		rec.Sample.Outlet.Celsius(),
		rec.Result.ExpectedOutlet.Celsius(),
		rec.HeaterPower.Kilowatts(),
		rec.PumpPressure.Pascals(),
		rec.HeaterFlow.KilogramsPerSecond(),
		clamped,
	}
	row := make([]string, len(vals))
	for i, v := range vals {
		row[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.err != nil {
		return
	}
	if err := r.w.Write(row); err != nil {
		r.err = err
		return
	}
	r.meta.Ticks++
	if r.meta.Ticks%flushEvery == 0 {
		r.w.Flush()
		r.err = r.w.Error()
	}
}

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes the trace and completes metadata.json with the run summary.
func (r *Recorder) Close(metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.err
	}
	r.closed = true

	r.w.Flush()
	if err := r.w.Error(); err != nil && r.err == nil {
		r.err = err
	}
	if err := r.file.Close(); err != nil && r.err == nil {
		r.err = err
	}

	r.meta.Finished = time.Now()
	r.meta.Metrics = metrics
	if err := r.store.writeMeta(r.meta); err != nil && r.err == nil {
		r.err = err
	}
	return r.err
}
