package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"leadcaller/models"
	"leadcaller/utils"
)

// DatasetStore owns the current dataset and its CSV file. Every mutation
// goes through one mutex so concurrent webhook write-backs never interleave.
type DatasetStore struct {
	mu      sync.Mutex
	path    string
	current *models.Dataset
	mirrors []DatasetMirror
	logger  *utils.Logger
}

// NewDatasetStore prepares the CSV location. Intermediate directories are
// created automatically. Mirrors are written after the CSV on every save.
func NewDatasetStore(path string, logger *utils.Logger, mirrors ...DatasetMirror) (*DatasetStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, eris.Wrap(err, "csv: create output dir")
	}
	return &DatasetStore{path: path, mirrors: mirrors, logger: logger}, nil
}

// Path returns the CSV file location.
func (s *DatasetStore) Path() string { return s.path }

// Replace makes ds the current dataset and persists it, superseding the
// previous one.
func (s *DatasetStore) Replace(ctx context.Context, ds *models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, ds); err != nil {
		return err
	}
	s.current = cloneDataset(ds)
	return nil
}

// Current returns a copy of the current dataset, falling back to the CSV
// file on disk when nothing has been loaded in this process.
func (s *DatasetStore) Current() (*models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		ds, err := s.load()
		if err != nil {
			return nil, err
		}
		s.current = ds
	}
	return cloneDataset(s.current), nil
}

// Update runs a read-modify-write cycle under the store lock. fn reports
// whether it changed the dataset; only changed datasets are persisted.
func (s *DatasetStore) Update(ctx context.Context, fn func(ds *models.Dataset) (bool, error)) (*models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		ds, err := s.load()
		if err != nil {
			return nil, err
		}
		s.current = ds
	}

	working := cloneDataset(s.current)
	changed, err := fn(working)
	if err != nil {
		return nil, err
	}
	if !changed {
		return working, nil
	}
	if err := s.persist(ctx, working); err != nil {
		return nil, err
	}
	s.current = cloneDataset(working)
	return working, nil
}

func (s *DatasetStore) persist(ctx context.Context, ds *models.Dataset) error {
	if err := writeCSV(s.path, ds); err != nil {
		return err
	}
	for _, m := range s.mirrors {
		if err := m.Write(ctx, ds); err != nil {
			s.logger.Z().Warn("dataset mirror write failed", zap.Error(err))
		}
	}
	return nil
}

// writeCSV writes the present columns to a temp file and renames it over
// the target so readers never see a half-written dataset.
func writeCSV(path string, ds *models.Dataset) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dataset-*.csv")
	if err != nil {
		return eris.Wrap(err, "csv: create temp file")
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	cols := ds.PresentColumns()
	if err := w.Write(cols); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "csv: write header")
	}
	for _, rec := range ds.Records() {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = rec[c]
		}
		if err := w.Write(row); err != nil {
			_ = tmp.Close()
			return eris.Wrap(err, "csv: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "csv: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "csv: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "csv: replace %q", path)
	}
	return nil
}

// load reads the dataset back from disk. Cycle metadata is not stored in
// the CSV, so a loaded dataset has an empty CycleID.
func (s *DatasetStore) load() (*models.Dataset, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %q", s.path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	ds := &models.Dataset{}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		values := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				values[col] = row[i]
			}
		}
		ds.Leads = append(ds.Leads, models.LeadFromValues(values))
	}
	return ds, nil
}

// Close closes every mirror.
func (s *DatasetStore) Close() error {
	var errs []error
	for _, m := range s.mirrors {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cloneDataset(ds *models.Dataset) *models.Dataset {
	if ds == nil {
		return nil
	}
	out := *ds
	out.Leads = make([]*models.Lead, len(ds.Leads))
	for i, l := range ds.Leads {
		cp := *l
		out.Leads[i] = &cp
	}
	return &out
}
