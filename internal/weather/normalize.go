package weather

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrSeriesLength is returned when parallel date/temperature arrays differ in length.
var ErrSeriesLength = errors.New("time and temperature series differ in length")

// roundHalfUp rounds to the nearest integer with halves going toward +Inf.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// NormalizeDaily converts parallel arrays of ISO dates and daily maxima into
// records. Null temperatures and unparseable dates are skipped.
func NormalizeDaily(times []string, temps []*float64) ([]TemperatureRecord, error) {
	if len(times) != len(temps) {
		return nil, ErrSeriesLength
	}

	records := make([]TemperatureRecord, 0, len(times))
	for i, ds := range times {
		if temps[i] == nil {
			continue
		}
		day, err := time.Parse(isoDateLayout, ds)
		if err != nil {
			continue
		}
		records = append(records, NewRecord(day, *temps[i]))
	}
	return SortRecords(records), nil
}

// Bucket is one sub-daily forecast interval.
type Bucket struct {
	Time    time.Time
	TempMax float64
}

// NormalizeBuckets keeps the highest TempMax per calendar day, with days
// taken in the given time zone.
func NormalizeBuckets(buckets []Bucket, tz *time.Location) []TemperatureRecord {
	if tz == nil {
		tz = time.UTC
	}

	type dayMax struct {
		day time.Time
		max float64
	}
	byDay := make(map[string]*dayMax)
	for _, b := range buckets {
		day := midnight(b.Time, tz)
		key := day.Format(isoDateLayout)
		if cur, ok := byDay[key]; !ok {
			byDay[key] = &dayMax{day: day, max: b.TempMax}
		} else if b.TempMax > cur.max {
			cur.max = b.TempMax
		}
	}

	records := make([]TemperatureRecord, 0, len(byDay))
	for _, dm := range byDay {
		records = append(records, NewRecord(dm.day, dm.max))
	}
	return SortRecords(records)
}

// SortRecords orders records by day and drops later duplicates of a day.
func SortRecords(records []TemperatureRecord) []TemperatureRecord {
	sorted := append([]TemperatureRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SortDate < sorted[j].SortDate
	})

	out := sorted[:0]
	for _, r := range sorted {
		if len(out) > 0 && out[len(out)-1].SortDate == r.SortDate {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CompleteYear restricts records to the year with the most entries. January 1
// and December 31 of that year are kept if they appear anywhere in records.
func CompleteYear(records []TemperatureRecord) []TemperatureRecord {
	if len(records) == 0 {
		return records
	}

	// Tally by year; ties go to the year seen first.
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		if len(r.SortDate) < 4 {
			continue
		}
		yr := r.SortDate[:4]
		if _, seen := counts[yr]; !seen {
			order = append(order, yr)
		}
		counts[yr]++
	}
	if len(order) == 0 {
		return nil
	}

	year := order[0]
	for _, yr := range order[1:] {
		if counts[yr] > counts[year] {
			year = yr
		}
	}

	filtered := make([]TemperatureRecord, 0, counts[year])
	for _, r := range records {
		if len(r.SortDate) >= 4 && r.SortDate[:4] == year {
			filtered = append(filtered, r)
		}
	}

	// No-op while the filter keeps the whole canonical year.
	jan1, dec31 := year+"-01-01", year+"-12-31"
	if !containsDay(filtered, jan1) {
		if r, ok := findDay(records, jan1); ok {
			filtered = append([]TemperatureRecord{r}, filtered...)
		}
	}
	if !containsDay(filtered, dec31) {
		if r, ok := findDay(records, dec31); ok {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func containsDay(records []TemperatureRecord, sortDate string) bool {
	_, ok := findDay(records, sortDate)
	return ok
}

func findDay(records []TemperatureRecord, sortDate string) (TemperatureRecord, bool) {
	for _, r := range records {
		if r.SortDate == sortDate {
			return r, true
		}
	}
	return TemperatureRecord{}, false
}
