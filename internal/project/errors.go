package project

import "errors"

var (
	// ErrProjectNotFound is returned when a project ID does not exist.
	ErrProjectNotFound = errors.New("project: not found")

	// ErrProjectExists is returned when creating a project with an ID that already exists.
	ErrProjectExists = errors.New("project: already exists")

	// ErrInvalidProject is returned when project validation fails.
	ErrInvalidProject = errors.New("project: invalid")
)
