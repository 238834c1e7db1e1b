package models

import "time"

// ClassGroup is a teacher-owned roster container stored under classes/{id}.
type ClassGroup struct {
	ID      string `json:"-"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

// Enrollment links a student to a class. It is stored under
// classes/{classId}/students/{studentId}; the key is the student id.
type Enrollment struct {
	StudentID string    `json:"-"`
	Email     string    `json:"email"`
	AddedAt   time.Time `json:"addedAt"`
}
