package weather

import (
	"strconv"
	"time"
)

const (
	isoDateLayout     = "2006-01-02"
	displayDateLayout = "1/2/2006"
)

// Source selects which provider adapter backs a fetch run.
type Source string

const (
	SourceArchive  Source = "archive"
	SourceForecast Source = "forecast"
	SourceHistory  Source = "history"
)

// RecordStatus describes whether a record carries a real reading or a sentinel.
type RecordStatus string

const (
	StatusOK          RecordStatus = "ok"
	StatusUnavailable RecordStatus = "unavailable"
	StatusError       RecordStatus = "error"
)

// Sentinel display values for records without a reading.
const (
	SentinelUnavailable = "N/A"
	SentinelError       = "Error"
)

// Location is the fixed place temperatures are fetched for.
type Location struct {
	ZipCode  string         `json:"zipCode"`
	Lat      float64        `json:"latitude"`
	Lon      float64        `json:"longitude"`
	Timezone *time.Location `json:"-"`
}

// Key returns a canonical string key for this location.
func (l Location) Key() string {
	return l.ZipCode
}

// TZ returns the location's time zone, falling back to UTC.
func (l Location) TZ() *time.Location {
	if l.Timezone == nil {
		return time.UTC
	}
	return l.Timezone
}

// TemperatureRecord is one day's normalized high temperature.
type TemperatureRecord struct {
	Date     string       `json:"date"`
	SortDate string       `json:"sortDate"`
	HighTemp *int         `json:"highTemp"`
	Status   RecordStatus `json:"status"`
	Reason   string       `json:"reason,omitempty"`
}

// NewRecord builds an ok record for day with the temperature rounded to whole degrees.
func NewRecord(day time.Time, tempF float64) TemperatureRecord {
	v := roundHalfUp(tempF)
	return TemperatureRecord{
		Date:     day.Format(displayDateLayout),
		SortDate: day.Format(isoDateLayout),
		HighTemp: &v,
		Status:   StatusOK,
	}
}

// UnavailableRecord builds a sentinel record for a day with no reading.
func UnavailableRecord(day time.Time) TemperatureRecord {
	return TemperatureRecord{
		Date:     day.Format(displayDateLayout),
		SortDate: day.Format(isoDateLayout),
		Status:   StatusUnavailable,
	}
}

// ErrorRecord builds a sentinel record for a day whose fetch failed.
func ErrorRecord(day time.Time, reason string) TemperatureRecord {
	return TemperatureRecord{
		Date:     day.Format(displayDateLayout),
		SortDate: day.Format(isoDateLayout),
		Status:   StatusError,
		Reason:   reason,
	}
}

// Day parses the record's sort key.
func (r TemperatureRecord) Day() (time.Time, error) {
	return time.Parse(isoDateLayout, r.SortDate)
}

// Display returns the temperature as text, or the sentinel for missing readings.
func (r TemperatureRecord) Display() string {
	switch {
	case r.Status == StatusError:
		return SentinelError
	case r.HighTemp == nil:
		return SentinelUnavailable
	default:
		return strconv.Itoa(*r.HighTemp)
	}
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days lists every calendar day in the range, in order.
func (r DateRange) Days() []time.Time {
	if r.End.Before(r.Start) {
		return nil
	}
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Filter keeps the records whose day falls inside the range. A zero range
// keeps everything.
func (r DateRange) Filter(records []TemperatureRecord) []TemperatureRecord {
	if r.Start.IsZero() && r.End.IsZero() {
		return records
	}
	start, end := r.Start.Format(isoDateLayout), r.End.Format(isoDateLayout)

	out := make([]TemperatureRecord, 0, len(records))
	for _, rec := range records {
		if rec.SortDate >= start && rec.SortDate <= end {
			out = append(out, rec)
		}
	}
	return out
}

// RunStatus is the lifecycle state of a fetch run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the state of one fetch operation: progress counters plus the
// records accumulated so far.
type Run struct {
	ID         string              `json:"id"`
	Source     Source              `json:"source"`
	Provider   string              `json:"provider"`
	Location   Location            `json:"location"`
	Range      DateRange           `json:"range"`
	Status     RunStatus           `json:"status"`
	Total      int                 `json:"total"`
	Completed  int                 `json:"completed"`
	Records    []TemperatureRecord `json:"records"`
	Error      string              `json:"error,omitempty"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}

// Snapshot returns a copy of the run that shares no mutable state with r.
func (r Run) Snapshot() Run {
	out := r
	out.Records = append([]TemperatureRecord(nil), r.Records...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
