package domain

import (
	"fmt"
	"time"
)

// Mode selects one of the three inventory workflows.
type Mode string

const (
	ModeUpdate Mode = "update"
	ModeAdd    Mode = "add"
	ModeFill   Mode = "fill"
)

// CoverageRequirement is a cell plus the inclusive date window it still needs.
// Zone, offset, and centroid are carried along so the planner does not need
// to look them up again.
type CoverageRequirement struct {
	WorldUtmID int
	Zone       int
	UTCOffset  time.Duration
	CellID     int64
	Centroid   Centroid
	DateFirst  time.Time
	DateLast   time.Time
}

// FillItem is a single missing (cell, date, parameter) triple found by a fill audit.
type FillItem struct {
	WorldUtmID int
	Zone       int
	UTCOffset  time.Duration
	CellID     int64
	Centroid   Centroid
	Date       time.Time
	Parameter  string
}

// FillKey identifies a FillItem independent of its grid metadata.
type FillKey struct {
	CellID    int64
	Date      time.Time
	Parameter string
}

// Key returns the FillKey of item.
func (f FillItem) Key() FillKey {
	return FillKey{CellID: f.CellID, Date: f.Date, Parameter: f.Parameter}
}

// RetrievalRecord is one stored daily observation.
// Value is NaN when the API reported no valid value.
type RetrievalRecord struct {
	WorldUtmID    int
	CellID        int64
	WeatherTypeID int
	Date          time.Time
	Value         float64
	DateRequested time.Time
}

// Observation is one (point, timestamp, parameter) value returned by the weather API.
type Observation struct {
	Lat       float64
	Lon       float64
	ValidDate time.Time
	Parameter string
	Value     float64
}

// DailyRow is an Observation matched back to its cell and localized to a date.
type DailyRow struct {
	WorldUtmID    int
	CellID        int64
	Date          time.Time
	Parameter     string
	Value         float64
	DateRequested time.Time
}

// CellLastRequested is the most recent fetch time for a cell, taken as the
// minimum across parameters of each parameter's latest fetch.
type CellLastRequested struct {
	WorldUtmID        int
	CellID            int64
	DateLastRequested time.Time
}

// DailyStamp is the retrieval time of one stored (cell, date) value of a
// single weather type.
type DailyStamp struct {
	CellID        int64
	Date          time.Time
	DateRequested time.Time
}

// WeatherType describes a daily API parameter.
type WeatherType struct {
	ID             int
	Name           string
	TemporalExtent time.Duration
	Units          string
	Description    string
}

func (r CoverageRequirement) String() string {
	return fmt.Sprintf("cell %d [%s, %s]", r.CellID, r.DateFirst.Format(DateLayout), r.DateLast.Format(DateLayout))
}
