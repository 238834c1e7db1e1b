package dto

// CreateClassRequest creates a class owned by the caller.
type CreateClassRequest struct {
	Name string `json:"name" validate:"max=120"`
}

// AddStudentRequest enrolls a student, looked up by email, into a class.
type AddStudentRequest struct {
	Email string `json:"email" validate:"max=255"`
}

// AddHomeworkRequest publishes a homework.
type AddHomeworkRequest struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=4000"`
	ClassID     string `json:"class_id" validate:"max=64"`
}

// CreatedResponse carries the id of a created record.
type CreatedResponse struct {
	ID string `json:"id"`
}
