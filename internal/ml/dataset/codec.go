package dataset

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"headline-vol/internal/domain"
)

const (
	tableFormat   = "tbl/v1"
	recordsFormat = "rec/v1"
)

type column struct {
	Name   string     `json:"name"`
	Values []*float64 `json:"values"`
	Absent []int      `json:"absent,omitempty"`
}

type tallTable struct {
	Format    string   `json:"format"`
	Rows      int      `json:"rows"`
	Dates     []string `json:"dates"`
	Headlines []string `json:"headlines"`
	Labels    []int    `json:"labels"`
	Columns   []column `json:"columns"`
}

// WriteTall encodes rows as a gzip-compressed columnar JSON table. NaN is
// stored as null; a row lacking a column is listed under that column's
// absent indexes so decoding restores the exact key set.
func WriteTall(w io.Writer, rows []domain.TallRecord) error {
	names := make(map[string]struct{})
	for _, r := range rows {
		for k := range r.Features {
			names[k] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(names))
	for k := range names {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	t := tallTable{
		Format:    tableFormat,
		Rows:      len(rows),
		Dates:     make([]string, len(rows)),
		Headlines: make([]string, len(rows)),
		Labels:    make([]int, len(rows)),
		Columns:   make([]column, len(ordered)),
	}
	for i, r := range rows {
		t.Dates[i] = r.Date.UTC().Format(time.RFC3339Nano)
		t.Headlines[i] = r.Headline
		t.Labels[i] = r.Label
	}
	for c, name := range ordered {
		col := column{Name: name, Values: make([]*float64, len(rows))}
		for i, r := range rows {
			v, ok := r.Features[name]
			if !ok {
				col.Absent = append(col.Absent, i)
				continue
			}
			if math.IsInf(v, 0) {
				return fmt.Errorf("%w: column %s row %d is infinite", domain.ErrDataIntegrity, name, i)
			}
			if math.IsNaN(v) {
				continue
			}
			col.Values[i] = &v
		}
		t.Columns[c] = col
	}
	return writeGzipJSON(w, t)
}

func ReadTall(r io.Reader) ([]domain.TallRecord, error) {
	var t tallTable
	if err := readGzipJSON(r, &t); err != nil {
		return nil, err
	}
	if t.Format != tableFormat {
		return nil, fmt.Errorf("%w: unsupported table format %q", domain.ErrDataIntegrity, t.Format)
	}
	if len(t.Dates) != t.Rows || len(t.Headlines) != t.Rows || len(t.Labels) != t.Rows {
		return nil, fmt.Errorf("%w: table columns disagree on row count", domain.ErrDataIntegrity)
	}
	rows := make([]domain.TallRecord, t.Rows)
	for i := range rows {
		d, err := time.Parse(time.RFC3339Nano, t.Dates[i])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d date: %v", domain.ErrDataIntegrity, i, err)
		}
		rows[i] = domain.TallRecord{
			Date:     d.UTC(),
			Headline: t.Headlines[i],
			Label:    t.Labels[i],
			Features: make(map[string]float64, len(t.Columns)),
		}
	}
	for _, col := range t.Columns {
		if len(col.Values) != t.Rows {
			return nil, fmt.Errorf("%w: column %s has %d values for %d rows", domain.ErrDataIntegrity, col.Name, len(col.Values), t.Rows)
		}
		absent := make(map[int]struct{}, len(col.Absent))
		for _, i := range col.Absent {
			absent[i] = struct{}{}
		}
		for i, v := range col.Values {
			if _, ok := absent[i]; ok {
				continue
			}
			if v == nil {
				rows[i].Features[col.Name] = math.NaN()
				continue
			}
			rows[i].Features[col.Name] = *v
		}
	}
	return rows, nil
}

type recordsEnvelope[T any] struct {
	Format  string `json:"format"`
	Records []T    `json:"records"`
}

// WriteRecords stores a slice of JSON-serialisable records.
func WriteRecords[T any](w io.Writer, records []T) error {
	return writeGzipJSON(w, recordsEnvelope[T]{Format: recordsFormat, Records: records})
}

func ReadRecords[T any](r io.Reader) ([]T, error) {
	var env recordsEnvelope[T]
	if err := readGzipJSON(r, &env); err != nil {
		return nil, err
	}
	if env.Format != recordsFormat {
		return nil, fmt.Errorf("%w: unsupported records format %q", domain.ErrDataIntegrity, env.Format)
	}
	return env.Records, nil
}

func writeGzipJSON(w io.Writer, v any) error {
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func readGzipJSON(r io.Reader, v any) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDataIntegrity, err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDataIntegrity, err)
	}
	return nil
}

// EncodeTall and DecodeTall are byte-slice conveniences for object storage.
func EncodeTall(rows []domain.TallRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTall(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeTall(data []byte) ([]domain.TallRecord, error) {
	return ReadTall(bytes.NewReader(data))
}
