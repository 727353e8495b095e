package weather

import "time"

// midnight truncates t to the start of its calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LastCalendarYear returns January 1 through December 31 of the year before now.
func LastCalendarYear(now time.Time, loc *time.Location) DateRange {
	year := now.In(loc).Year() - 1
	return DateRange{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// ForecastWindow returns days calendar days starting today.
func ForecastWindow(now time.Time, loc *time.Location, days int) DateRange {
	start := midnight(now, loc)
	if days < 1 {
		days = 1
	}
	return DateRange{Start: start, End: start.AddDate(0, 0, days-1)}
}

// TrailingWindow returns the days calendar days ending yesterday.
func TrailingWindow(now time.Time, loc *time.Location, days int) DateRange {
	end := midnight(now, loc).AddDate(0, 0, -1)
	if days < 1 {
		days = 1
	}
	return DateRange{Start: end.AddDate(0, 0, -(days - 1)), End: end}
}
