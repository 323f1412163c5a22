package dataset

import (
	"sort"

	"headline-vol/internal/domain"
)

const (
	TrainFraction = 0.70
	ValFraction   = 0.15
)

// ChronologicalSplit cuts rows into train, val and test by distinct date so a
// day never straddles two splits. Each split gets at least one day when there
// are three or more days.
func ChronologicalSplit(rows []domain.TallRecord) (train, val, test []domain.TallRecord) {
	sorted := make([]domain.TallRecord, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	days := make([]int, 0)
	for i := range sorted {
		if i == 0 || !sorted[i].Date.Equal(sorted[i-1].Date) {
			days = append(days, i)
		}
	}
	n := len(days)
	if n == 0 {
		return nil, nil, nil
	}
	trainEnd := int(float64(n) * TrainFraction)
	valEnd := int(float64(n) * (TrainFraction + ValFraction))
	if n >= 3 {
		if trainEnd < 1 {
			trainEnd = 1
		}
		if valEnd <= trainEnd {
			valEnd = trainEnd + 1
		}
		if valEnd >= n {
			valEnd = n - 1
		}
		if trainEnd >= valEnd {
			trainEnd = valEnd - 1
		}
	} else {
		trainEnd, valEnd = n, n
	}

	cut := func(day int) int {
		if day >= n {
			return len(sorted)
		}
		return days[day]
	}
	return sorted[:cut(trainEnd)], sorted[cut(trainEnd):cut(valEnd)], sorted[cut(valEnd):]
}

// Dates returns the distinct day keys of rows in ascending order.
func Dates(rows []domain.TallRecord) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range rows {
		k := domain.DateKey(r.Date)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RowsOn returns the rows dated on day (YYYY-MM-DD), preserving order.
func RowsOn(rows []domain.TallRecord, day string) []domain.TallRecord {
	out := make([]domain.TallRecord, 0)
	for _, r := range rows {
		if domain.DateKey(r.Date) == day {
			out = append(out, r)
		}
	}
	return out
}
