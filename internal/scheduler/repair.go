package scheduler

import (
	"context"
	"errors"
	"sort"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// repairCheckInterval is how many trial relocations run between cancellation checks.
const repairCheckInterval = 16

var errRepairExpired = errors.New("repair deadline expired")

// RepairMove records one accepted relocation.
type RepairMove struct {
	AssignmentID string            `json:"assignment_id"`
	Before       models.Assignment `json:"before"`
	After        models.Assignment `json:"after"`
	Conflicts    int               `json:"conflicts"`
}

// RepairResult is the outcome of Repair.
type RepairResult struct {
	Assignments *AssignmentSet
	Conflicts   []models.Conflict
	Moves       []RepairMove
	Unresolved  []string
	Iterations  int
	Before      int
	After       int
	Incomplete  bool
}

// Repair runs conflict-reducing local search over a copy of set. Each iteration walks the
// conflicting assignments and accepts the first relocation to another slot that strictly
// lowers the total conflict count: fully feasible placements are tried before relaxed
// ones, and the current faculty member before others. The count never increases.
// It stops when an iteration finds no improving move, the iteration cap is reached or
// ctx/opts.Deadline expires.
func Repair(ctx context.Context, catalog *Catalog, set *AssignmentSet, opts Options) (*RepairResult, error) {
	if catalog == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "catalog is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := catalog.ValidateSet(set); err != nil {
		return nil, err
	}

	p := newPlanner(catalog, opts)
	current := set.Clone()
	conflicts, err := DetectConflicts(catalog, current)
	if err != nil {
		return nil, err
	}

	result := &RepairResult{Before: len(conflicts), Moves: make([]RepairMove, 0)}
	limit := opts.repairIterations()

	for result.Iterations < limit && len(conflicts) > 0 {
		if opts.expired(ctx) {
			result.Incomplete = true
			break
		}
		result.Iterations++

		improved := false
		for _, id := range ConflictingIDs(conflicts) {
			if opts.expired(ctx) {
				result.Incomplete = true
				break
			}
			next, nextConflicts, move, ok, err := p.relocate(ctx, current, len(conflicts), id)
			if errors.Is(err, errRepairExpired) {
				result.Incomplete = true
				break
			}
			if err != nil {
				return nil, err
			}
			if ok {
				current, conflicts = next, nextConflicts
				result.Moves = append(result.Moves, move)
				improved = true
				break
			}
		}
		if !improved || result.Incomplete {
			break
		}
	}

	result.Assignments = current
	result.Conflicts = conflicts
	result.After = len(conflicts)
	result.Unresolved = ConflictingIDs(conflicts)
	return result, nil
}

// relocate searches for a move of one assignment that brings the conflict count below baseline.
// It returns errRepairExpired when cancellation is observed between trials.
func (p *planner) relocate(ctx context.Context, current *AssignmentSet, baseline int, id string) (*AssignmentSet, []models.Conflict, RepairMove, bool, error) {
	a, ok := current.Get(id)
	if !ok {
		return nil, nil, RepairMove{}, false, nil
	}
	course, _ := p.catalog.Course(a.CourseID)
	occ := occupancyOf(current.All(), id)
	exclude := a.Slot

	seen := make(map[candidate]struct{})
	trials := 0
	for _, relaxed := range []bool{false, true} {
		cands := p.candidates(course, occ, &exclude, relaxed)
		sort.SliceStable(cands, func(i, j int) bool {
			return cands[i].facultyID == a.FacultyID && cands[j].facultyID != a.FacultyID
		})
		for _, c := range cands {
			key := candidate{facultyID: c.facultyID, roomID: c.roomID, slot: c.slot}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if trials%repairCheckInterval == 0 && p.opts.expired(ctx) {
				return nil, nil, RepairMove{}, false, errRepairExpired
			}
			trials++

			moved := a
			moved.FacultyID = c.facultyID
			moved.RoomID = c.roomID
			moved.Slot = c.slot

			trial := current.Clone()
			if err := trial.Replace(moved); err != nil {
				return nil, nil, RepairMove{}, false, err
			}
			trialConflicts, err := DetectConflicts(p.catalog, trial)
			if err != nil {
				return nil, nil, RepairMove{}, false, err
			}
			if len(trialConflicts) < baseline {
				return trial, trialConflicts, RepairMove{
					AssignmentID: id,
					Before:       a,
					After:        moved,
					Conflicts:    len(trialConflicts),
				}, true, nil
			}
		}
	}
	return nil, nil, RepairMove{}, false, nil
}
