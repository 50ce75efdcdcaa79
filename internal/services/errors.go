package services

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrStorageConflict marks a write that lost to a concurrent writer on the
// same row (unique-key collision). Callers log and skip the unit of work;
// siblings continue.
var ErrStorageConflict = errors.New("storage conflict")

// wrapConflict converts a MySQL duplicate-entry error into ErrStorageConflict
// so callers can match it with errors.Is without knowing the driver.
func wrapConflict(op string, err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return fmt.Errorf("%s: %w: %v", op, ErrStorageConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ScheduleConfigError marks a schedule whose stored configuration cannot be
// evaluated (bad timezone, unparseable time-of-day). The schedule is treated
// as not due; other schedules are unaffected.
type ScheduleConfigError struct {
	ScheduleID int64
	Field      string
	Err        error
}

func (e *ScheduleConfigError) Error() string {
	return fmt.Sprintf("schedule %d has invalid %s: %v", e.ScheduleID, e.Field, e.Err)
}

func (e *ScheduleConfigError) Unwrap() error {
	return e.Err
}
