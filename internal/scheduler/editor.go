package scheduler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// Editor applies interactive mutations to one assignment set and keeps an undo stack of
// full snapshots. Every successful mutation pushes exactly one snapshot; failed calls leave
// both the set and the history untouched. It does not lock: callers serialize edits.
type Editor struct {
	catalog      *Catalog
	current      *AssignmentSet
	history      []*AssignmentSet
	historyLimit int
	newID        func() string
}

// EditorOption customises an Editor.
type EditorOption func(*Editor)

// WithHistoryLimit caps the undo stack; the oldest snapshots are dropped first. Zero means unlimited.
func WithHistoryLimit(n int) EditorOption {
	return func(e *Editor) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithIDGenerator overrides the id source for inserted assignments.
func WithIDGenerator(fn func() string) EditorOption {
	return func(e *Editor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEditor validates the initial set and takes a private copy of it.
func NewEditor(catalog *Catalog, initial *AssignmentSet, opts ...EditorOption) (*Editor, error) {
	if catalog == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "catalog is required")
	}
	if err := catalog.ValidateSet(initial); err != nil {
		return nil, err
	}
	e := &Editor{
		catalog: catalog,
		current: initial.Clone(),
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog exposes the reference data the editor validates against.
func (e *Editor) Catalog() *Catalog {
	return e.catalog
}

// Assignments returns a copy of the current set.
func (e *Editor) Assignments() *AssignmentSet {
	return e.current.Clone()
}

// HistoryDepth is the number of undoable mutations.
func (e *Editor) HistoryDepth() int {
	return len(e.history)
}

// Conflicts runs the detector on the current set.
func (e *Editor) Conflicts() ([]models.Conflict, error) {
	return DetectConflicts(e.catalog, e.current)
}

// Move relocates an assignment to another slot in the same room. It fails with
// SLOT_OCCUPIED when the room is already booked there and never swaps implicitly.
func (e *Editor) Move(id string, slot models.SlotKey) error {
	a, ok := e.current.Get(id)
	if !ok {
		return notFound(id)
	}
	if !e.catalog.HasSlot(slot) {
		return reference("slot %s is not part of the grid", slot)
	}
	if a.Slot == slot {
		return nil
	}
	for _, other := range e.current.All() {
		if other.ID != id && other.RoomID == a.RoomID && other.Slot == slot {
			return appErrors.Clone(appErrors.ErrSlotOccupied,
				fmt.Sprintf("room %s is already booked at %s by %s", a.RoomID, slot, other.ID))
		}
	}

	e.snapshot()
	a.Slot = slot
	return e.current.Replace(a)
}

// Swap exchanges the (room, slot) pair of two assignments. Applying it twice restores the set.
func (e *Editor) Swap(idA, idB string) error {
	a, ok := e.current.Get(idA)
	if !ok {
		return notFound(idA)
	}
	b, ok := e.current.Get(idB)
	if !ok {
		return notFound(idB)
	}
	if idA == idB {
		return nil
	}

	e.snapshot()
	a.RoomID, b.RoomID = b.RoomID, a.RoomID
	a.Slot, b.Slot = b.Slot, a.Slot
	if err := e.current.Replace(a); err != nil {
		return err
	}
	return e.current.Replace(b)
}

// Insert adds an assignment after reference and qualification checks. Conflicts are not
// checked; an empty id is filled with a generated one. The stored assignment is returned.
func (e *Editor) Insert(a models.Assignment) (models.Assignment, error) {
	if a.ID == "" {
		a.ID = e.newID()
	}
	if err := e.catalog.ValidateAssignment(a); err != nil {
		return models.Assignment{}, err
	}
	if _, exists := e.current.Get(a.ID); exists {
		return models.Assignment{}, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("assignment %s already exists", a.ID))
	}

	e.snapshot()
	if err := e.current.Add(a); err != nil {
		return models.Assignment{}, err
	}
	return a, nil
}

// Update replaces every field of an existing assignment.
func (e *Editor) Update(a models.Assignment) error {
	if _, ok := e.current.Get(a.ID); !ok {
		return notFound(a.ID)
	}
	if err := e.catalog.ValidateAssignment(a); err != nil {
		return err
	}

	e.snapshot()
	return e.current.Replace(a)
}

// Remove deletes an assignment.
func (e *Editor) Remove(id string) error {
	if _, ok := e.current.Get(id); !ok {
		return notFound(id)
	}

	e.snapshot()
	return e.current.Delete(id)
}

// Replace installs a whole new set as a single undoable step.
func (e *Editor) Replace(set *AssignmentSet) error {
	if err := e.catalog.ValidateSet(set); err != nil {
		return err
	}

	e.snapshot()
	e.current = set.Clone()
	return nil
}

// Undo restores the set as it was before the most recent mutation.
func (e *Editor) Undo() error {
	n := len(e.history)
	if n == 0 {
		return appErrors.Clone(appErrors.ErrEmptyHistory, "")
	}
	e.current = e.history[n-1]
	e.history[n-1] = nil
	e.history = e.history[:n-1]
	return nil
}

func (e *Editor) snapshot() {
	e.history = append(e.history, e.current.Clone())
	if e.historyLimit > 0 && len(e.history) > e.historyLimit {
		drop := len(e.history) - e.historyLimit
		e.history = append([]*AssignmentSet(nil), e.history[drop:]...)
	}
}
