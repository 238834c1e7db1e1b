package store

import (
	"fmt"
	"strings"
)

// Collections used by the homework tracker.
const (
	CollectionUsers     = "users"
	CollectionClasses   = "classes"
	CollectionHomeworks = "homeworks"

	studentsSegment = "students"
)

// Doc joins a collection path and a document id.
func Doc(collection, id string) string {
	return collection + "/" + id
}

// StudentsOf returns the enrollment sub-collection of a class.
func StudentsOf(classID string) string {
	return CollectionClasses + "/" + classID + "/" + studentsSegment
}

// SplitPath separates a document path into its collection path and id.
func SplitPath(path string) (string, string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("invalid document path %q", path)
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return "", "", fmt.Errorf("invalid document path %q", path)
		}
	}
	return strings.Join(segments[:len(segments)-1], "/"), segments[len(segments)-1], nil
}

// ParentCollection returns the collection holding the parent document of a
// nested collection, e.g. "classes" for "classes/c1/students".
func ParentCollection(collection string) (string, bool) {
	segments := strings.Split(strings.Trim(collection, "/"), "/")
	if len(segments) < 3 {
		return "", false
	}
	return strings.Join(segments[:len(segments)-2], "/"), true
}

func validCollection(collection string) error {
	segments := strings.Split(strings.Trim(collection, "/"), "/")
	if len(segments)%2 != 1 {
		return fmt.Errorf("invalid collection path %q", collection)
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return fmt.Errorf("invalid collection path %q", collection)
		}
	}
	return nil
}
