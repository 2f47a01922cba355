package services

import (
	"fmt"
)

// PetitionsNotFoundError is raised by the strict trend update policy when
// active petitions have no anchor record in the window.
type PetitionsNotFoundError struct {
	MissingIDs []int64
	FoundIDs   []int64
}

func (e *PetitionsNotFoundError) Error() string {
	return fmt.Sprintf("Petition(s) not found, for trend index update. Missing ids: %v. Found ids: %v.",
		e.MissingIDs, e.FoundIDs)
}

// RecordsNotFoundError is raised when a trend update finds no anchor records
// at all, leaving no basis for a growth computation.
type RecordsNotFoundError struct {
	FoundIDs []int64
}

func (e *RecordsNotFoundError) Error() string {
	return fmt.Sprintf("Record(s) not found, for growth rate update. Found ids: %v.", e.FoundIDs)
}
