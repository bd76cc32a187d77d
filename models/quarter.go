package models

import (
	"fmt"
	"time"
)

// Quarter is a calendar quarter (Q1 = Jan-Mar ... Q4 = Oct-Dec)
type Quarter struct {
	Year    int
	Quarter int
}

// QuarterOf returns the calendar quarter containing t
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Quarter: (int(t.Month())-1)/3 + 1}
}

// Start is the first instant of the quarter (inclusive)
func (q Quarter) Start() time.Time {
	return time.Date(q.Year, time.Month((q.Quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant after the quarter (exclusive)
func (q Quarter) End() time.Time {
	return q.Start().AddDate(0, 3, 0)
}

// Contains reports whether t falls in [Start, End)
func (q Quarter) Contains(t *time.Time) bool {
	if t == nil {
		return false
	}
	return !t.Before(q.Start()) && t.Before(q.End())
}

// Add shifts the quarter by n quarters (negative moves back)
func (q Quarter) Add(n int) Quarter {
	idx := q.Year*4 + (q.Quarter - 1) + n
	return Quarter{Year: idx / 4, Quarter: idx%4 + 1}
}

// Before reports whether q precedes o
func (q Quarter) Before(o Quarter) bool {
	if q.Year != o.Year {
		return q.Year < o.Year
	}
	return q.Quarter < o.Quarter
}

// IsZero reports whether the quarter is unset
func (q Quarter) IsZero() bool {
	return q.Year == 0 && q.Quarter == 0
}

func (q Quarter) String() string {
	return fmt.Sprintf("%d-Q%d", q.Year, q.Quarter)
}

// CohortWindow pairs the current quarter with its baseline
type CohortWindow struct {
	Current  Quarter
	Baseline Quarter
}

// NewCohortWindow builds the window with the baseline offset quarters before current
func NewCohortWindow(current Quarter, offset int) CohortWindow {
	return CohortWindow{Current: current, Baseline: current.Add(-offset)}
}

// ReferenceQuarter derives the current quarter as the latest quarter
// in which any listing received its first review.
func ReferenceQuarter(firstReviews []*time.Time) (Quarter, bool) {
	var best Quarter
	found := false
	for _, t := range firstReviews {
		if t == nil {
			continue
		}
		q := QuarterOf(*t)
		if !found || best.Before(q) {
			best = q
			found = true
		}
	}
	return best, found
}
