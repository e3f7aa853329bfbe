package models

import "time"

// Lock is a named mutex row. Holding the row is holding the lock; it is
// considered stale once AcquiredAt is older than the lease.
type Lock struct {
	Name       string    `gorm:"primaryKey;size:255"`
	Owner      string    `gorm:"size:64;not null"`
	AcquiredAt time.Time `gorm:"index;not null"`
}
