// Package sink persists extraction records as JSON files and renders metric
// charts as PNG images.
package sink

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/model"
)

// RecordSuffix is appended to the period to name a record file.
const RecordSuffix = "_insights.json"

// Sink writes records under an insights root and charts under an images root.
type Sink struct {
	insightsRoot string
	imagesRoot   string
	log          *zap.Logger
}

// New creates a Sink.
func New(insightsRoot, imagesRoot string) *Sink {
	return &Sink{
		insightsRoot: insightsRoot,
		imagesRoot:   imagesRoot,
		log:          zap.L().With(zap.String("component", "sink")),
	}
}

// ImagesRoot returns the directory charts are written to.
func (s *Sink) ImagesRoot() string { return s.imagesRoot }

// RecordPath returns the file a company/period record is written to.
func (s *Sink) RecordPath(company, period string) string {
	return filepath.Join(s.insightsRoot, company, period+RecordSuffix)
}

// WriteRecord writes the record for a company/period, replacing any prior
// file. A nil record is written as an empty object.
func (s *Sink) WriteRecord(company, period string, record model.ExtractionRecord) (string, error) {
	if record == nil {
		record = model.ExtractionRecord{}
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "sink: marshal record %s/%s", company, period)
	}

	path := s.RecordPath(company, period)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	s.log.Info("saved insights",
		zap.String("company", company),
		zap.String("period", period),
		zap.String("path", path),
	)
	return path, nil
}

// StoredRecord is one persisted record. Err is set when the file could not be
// read or decoded.
type StoredRecord struct {
	Period string
	Path   string
	Record model.ExtractionRecord
	Err    error
}

// ReadRecords returns the persisted records for a company, newest period
// first. A company with no directory has no records.
func (s *Sink) ReadRecords(company string) ([]StoredRecord, error) {
	dir := filepath.Join(s.insightsRoot, company)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sink: list records for %s", company)
	}

	var out []StoredRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, RecordSuffix) {
			continue
		}
		rec := StoredRecord{
			Period: strings.TrimSuffix(name, RecordSuffix),
			Path:   filepath.Join(dir, name),
		}
		data, err := os.ReadFile(rec.Path)
		if err != nil {
			rec.Err = eris.Wrapf(err, "sink: read %s", rec.Path)
		} else if err := json.Unmarshal(data, &rec.Record); err != nil {
			rec.Err = eris.Wrapf(err, "sink: decode %s", rec.Path)
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return model.PeriodBefore(out[j].Period, out[i].Period)
	})
	return out, nil
}

// writeFileAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "sink: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "sink: create temp in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "sink: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "sink: close %s", path)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "sink: chmod %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "sink: rename %s", path)
	}
	return nil
}
