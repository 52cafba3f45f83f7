package model

import (
	"fmt"
	"time"
)

const cohortLayout = "2006-01-02"

// CohortDate identifies a deadline cohort: every goal whose deadline falls on
// the same UTC calendar day.
type CohortDate string

func CohortOf(deadline time.Time) CohortDate {
	return CohortDate(deadline.UTC().Format(cohortLayout))
}

func ParseCohortDate(s string) (CohortDate, error) {
	t, err := time.Parse(cohortLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid cohort date %q: expected YYYY-MM-DD", s)
	}
	return CohortOf(t), nil
}

// Bounds returns the half-open interval [start, end) covered by the cohort.
func (c CohortDate) Bounds() (time.Time, time.Time) {
	start, err := time.Parse(cohortLayout, string(c))
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return start, start.AddDate(0, 0, 1)
}

func (c CohortDate) String() string {
	return string(c)
}
