package weather

import (
	"sort"
	"time"
)

// DaysPerRow is the number of day cells in one calendar row.
const DaysPerRow = 7

// CalendarCell is one day in a calendar row. Blank cells pad a short last row.
type CalendarCell struct {
	Day    int                `json:"day,omitempty"`
	Record *TemperatureRecord `json:"record,omitempty"`
	Blank  bool               `json:"blank,omitempty"`
}

// Text returns the cell's temperature text, or "" for a blank cell.
func (c CalendarCell) Text() string {
	if c.Blank || c.Record == nil {
		return ""
	}
	return c.Record.Display()
}

// MonthBlock holds one month's records split into rows.
type MonthBlock struct {
	Month time.Month       `json:"month"`
	Name  string           `json:"name"`
	Rows  [][]CalendarCell `json:"rows"`
}

// GroupByMonth buckets records into twelve months ordered January to
// December, each sorted by day of month and chunked into rows of DaysPerRow.
// Records with an unparseable sort key are dropped.
func GroupByMonth(records []TemperatureRecord) []MonthBlock {
	var byMonth [12][]CalendarCell
	for i := range records {
		day, err := records[i].Day()
		if err != nil {
			continue
		}
		rec := records[i]
		m := int(day.Month()) - 1
		byMonth[m] = append(byMonth[m], CalendarCell{Day: day.Day(), Record: &rec})
	}

	blocks := make([]MonthBlock, 0, 12)
	for i, cells := range byMonth {
		sort.SliceStable(cells, func(a, b int) bool { return cells[a].Day < cells[b].Day })
		month := time.Month(i + 1)
		blocks = append(blocks, MonthBlock{
			Month: month,
			Name:  month.String(),
			Rows:  WeekRows(cells),
		})
	}
	return blocks
}

// WeekRows splits cells into rows of DaysPerRow, padding the last row with blanks.
func WeekRows(cells []CalendarCell) [][]CalendarCell {
	rows := make([][]CalendarCell, 0, (len(cells)+DaysPerRow-1)/DaysPerRow)
	for i := 0; i < len(cells); i += DaysPerRow {
		end := i + DaysPerRow
		if end > len(cells) {
			end = len(cells)
		}
		row := make([]CalendarCell, 0, DaysPerRow)
		row = append(row, cells[i:end]...)
		for len(row) < DaysPerRow {
			row = append(row, CalendarCell{Blank: true})
		}
		rows = append(rows, row)
	}
	return rows
}
