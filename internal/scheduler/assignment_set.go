package scheduler

import (
	"fmt"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// AssignmentSet is an ordered collection of assignments keyed by unique id.
// Assignments are flat values, so Clone yields a fully independent copy.
type AssignmentSet struct {
	items []models.Assignment
	index map[string]int
}

// NewAssignmentSet builds a set, rejecting empty or duplicate ids.
func NewAssignmentSet(assignments []models.Assignment) (*AssignmentSet, error) {
	set := &AssignmentSet{
		items: make([]models.Assignment, 0, len(assignments)),
		index: make(map[string]int, len(assignments)),
	}
	for _, a := range assignments {
		if err := set.Add(a); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Len returns the number of assignments.
func (s *AssignmentSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Get looks up an assignment by id.
func (s *AssignmentSet) Get(id string) (models.Assignment, bool) {
	if s == nil {
		return models.Assignment{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return models.Assignment{}, false
	}
	return s.items[i], true
}

// All returns a copy of the assignments in set order.
func (s *AssignmentSet) All() []models.Assignment {
	if s == nil {
		return []models.Assignment{}
	}
	out := make([]models.Assignment, len(s.items))
	copy(out, s.items)
	return out
}

// Clone deep copies the set.
func (s *AssignmentSet) Clone() *AssignmentSet {
	clone := &AssignmentSet{index: make(map[string]int, s.Len())}
	if s == nil {
		return clone
	}
	clone.items = make([]models.Assignment, len(s.items))
	copy(clone.items, s.items)
	for id, i := range s.index {
		clone.index[id] = i
	}
	return clone
}

// Add appends an assignment.
func (s *AssignmentSet) Add(a models.Assignment) error {
	if a.ID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "assignment id is required")
	}
	if _, exists := s.index[a.ID]; exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("assignment %s already exists", a.ID))
	}
	s.index[a.ID] = len(s.items)
	s.items = append(s.items, a)
	return nil
}

// Replace overwrites the assignment carrying the same id, keeping its position.
func (s *AssignmentSet) Replace(a models.Assignment) error {
	i, ok := s.index[a.ID]
	if !ok {
		return notFound(a.ID)
	}
	s.items[i] = a
	return nil
}

// Delete removes an assignment preserving the order of the rest.
func (s *AssignmentSet) Delete(id string) error {
	i, ok := s.index[id]
	if !ok {
		return notFound(id)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ID] = j
	}
	return nil
}

// Equal reports whether both sets hold identical assignments in the same order.
func (s *AssignmentSet) Equal(other *AssignmentSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if s.items[i] != other.items[i] {
			return false
		}
	}
	return true
}

func notFound(id string) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("assignment %s not found", id))
}
