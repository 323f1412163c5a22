package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/features"
)

var dateLayouts = []string{time.DateOnly, "2006-01-02 15:04:05", time.RFC3339, "1/2/2006", "01/02/2006"}

// ReadWideCSV parses a wide daily file: Date, vol_up or Label, Top1..Top25
// and numeric scalar columns. Files without a label column get labels
// derived from the realized volatility series.
func ReadWideCSV(r io.Reader) ([]domain.WideRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", domain.ErrDataIntegrity, err)
	}

	dateCol, labelCol := -1, -1
	slotCols := make(map[int]int)
	scalarCols := make(map[int]string)
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case name == "Date":
			dateCol = i
		case name == "vol_up":
			labelCol = i
		case name == "Label":
			if labelCol < 0 {
				labelCol = i
			}
		case strings.HasPrefix(name, "Top"):
			n, err := strconv.Atoi(strings.TrimPrefix(name, "Top"))
			if err != nil || n < 1 || n > domain.HeadlineSlots {
				return nil, fmt.Errorf("%w: unexpected headline column %q", domain.ErrDataIntegrity, name)
			}
			slotCols[i] = n - 1
		default:
			scalarCols[i] = name
		}
	}
	if dateCol < 0 {
		return nil, fmt.Errorf("%w: csv has no Date column", domain.ErrDataIntegrity)
	}

	out := make([]domain.WideRecord, 0)
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrDataIntegrity, line, err)
		}
		var w domain.WideRecord
		w.Date, err = parseDate(field(rec, dateCol))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrDataIntegrity, line, err)
		}
		if labelCol >= 0 {
			w.Label, err = parseLabel(field(rec, labelCol))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", domain.ErrDataIntegrity, line, err)
			}
		}
		for col, slot := range slotCols {
			w.Headlines[slot] = cleanHeadline(field(rec, col))
		}
		w.Scalars = make(map[string]float64, len(scalarCols))
		for col, name := range scalarCols {
			raw := strings.TrimSpace(field(rec, col))
			if raw == "" {
				w.Scalars[name] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: column %s: %v", domain.ErrDataIntegrity, line, name, err)
			}
			w.Scalars[name] = v
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: csv has no data rows", domain.ErrDataIntegrity)
	}
	if labelCol < 0 {
		if _, ok := out[0].Scalars[domain.MetricRealizedVol]; !ok {
			return nil, fmt.Errorf("%w: csv has neither a label column nor %s", domain.ErrDataIntegrity, domain.MetricRealizedVol)
		}
		out = features.DeriveLabels(out)
	}
	return out, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return domain.TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func parseLabel(raw string) (int, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("label %q: %v", raw, err)
	}
	if v != 0 && v != 1 {
		return 0, fmt.Errorf("label %q is not binary", raw)
	}
	return int(v), nil
}

// cleanHeadline strips the b'...' wrapper some scraped sources leave on
// headlines.
func cleanHeadline(h string) string {
	h = strings.TrimSpace(h)
	if len(h) >= 3 && (strings.HasPrefix(h, "b'") && strings.HasSuffix(h, "'") || strings.HasPrefix(h, `b"`) && strings.HasSuffix(h, `"`)) {
		return h[2 : len(h)-1]
	}
	return h
}
