package models

import "time"

// Holiday flags a calendar date as non-schedulable for new lessons. Advisory only.
type Holiday struct {
	Date time.Time `db:"date" json:"date"`
	Name string    `db:"name" json:"name"`
}
