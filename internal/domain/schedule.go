package domain

import "fmt"

// Default time of day for the daily report jobs.
const (
	DefaultReportHour   = 10
	DefaultReportMinute = 45
)

// ReportSchedule is the single-row configuration for the daily report time.
type ReportSchedule struct {
	ID     int64
	Hour   int
	Minute int
}

func (s *ReportSchedule) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("%w: hour must be between 0 and 23", ErrValidation)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: minute must be between 0 and 59", ErrValidation)
	}
	return nil
}
