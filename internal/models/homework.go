package models

import "time"

// Homework is an assignment published by a teacher, optionally scoped to a class.
type Homework struct {
	ID          string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AssignedBy  string    `json:"assignedBy"`
	AssignedAt  time.Time `json:"assignedAt"`
	ClassID     string    `json:"classId"`
}
