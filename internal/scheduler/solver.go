package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// CourseHour is one weekly teaching unit of a course. Hour is 1-based.
type CourseHour struct {
	CourseID string `json:"course_id"`
	Hour     int    `json:"hour"`
}

// AssignmentID is the deterministic id given to the generated assignment.
func (h CourseHour) AssignmentID() string {
	return fmt.Sprintf("%s#%d", h.CourseID, h.Hour)
}

// Stats summarises one generation run.
type Stats struct {
	CourseHours int           `json:"course_hours"`
	Placed      int           `json:"placed"`
	Failed      int           `json:"failed"`
	Backtracks  int           `json:"backtracks"`
	Duration    time.Duration `json:"duration"`
}

// Result is the outcome of Generate. Conflicts holds the detector report followed by
// one PLACEMENT_FAILURE entry per course-hour in PlacementFailures.
type Result struct {
	Assignments       *AssignmentSet
	Conflicts         []models.Conflict
	PlacementFailures []CourseHour
	Incomplete        bool
	Quality           Quality
	Stats             Stats
}

type candidate struct {
	facultyID string
	roomID    string
	slot      models.SlotKey
	cost      float64
	tiebreak  int64
}

type frame struct {
	unit       CourseHour
	course     models.Course
	candidates []candidate
	next       int
	placed     bool
	failed     bool
	assignment models.Assignment
}

// planner holds the per-run state shared by generation and repair.
type planner struct {
	catalog *Catalog
	opts    Options
	rng     *rand.Rand
}

func newPlanner(catalog *Catalog, opts Options) *planner {
	return &planner{
		catalog: catalog,
		opts:    opts,
		rng:     rand.New(rand.NewSource(opts.RandomSeed)),
	}
}

// Generate builds a timetable from scratch with greedy placement and bounded
// chronological backtracking. Course-hours that cannot be placed are reported as
// placement failures. Cancellation through ctx or opts.Deadline is checked between
// placements and yields the best partial result with Incomplete set; it is not an error.
func Generate(ctx context.Context, catalog *Catalog, opts Options) (*Result, error) {
	if catalog == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "catalog is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	p := newPlanner(catalog, opts)

	units := p.courseHours()
	frames := make([]frame, len(units))
	for i, u := range units {
		course, _ := catalog.Course(u.CourseID)
		frames[i] = frame{unit: u, course: course}
	}

	occ := newOccupancy()
	budget := opts.backtrackBudget(len(catalog.courseIDs))
	backtracks := 0
	incomplete := false

	// saved holds the frames as they were when a course-hour first got stuck, so an
	// unsuccessful backtrack can be rolled back before the course-hour is given up.
	var saved []frame
	stuckAt := -1

	for i := 0; i < len(frames); {
		if opts.expired(ctx) {
			if saved != nil {
				frames = saved
				occ = occupancyOfFrames(frames)
			}
			incomplete = true
			break
		}

		f := &frames[i]
		if f.failed {
			i++
			continue
		}
		if f.candidates == nil {
			f.candidates = p.candidates(f.course, occ, nil, false)
			f.next = 0
		}
		if f.next < len(f.candidates) {
			c := f.candidates[f.next]
			f.next++
			f.assignment = models.Assignment{
				ID:        f.unit.AssignmentID(),
				CourseID:  f.unit.CourseID,
				FacultyID: c.facultyID,
				RoomID:    c.roomID,
				Slot:      c.slot,
			}
			f.placed = true
			occ.add(f.assignment)
			if i == stuckAt {
				saved = nil
				stuckAt = -1
			}
			i++
			continue
		}

		if saved == nil {
			saved = append([]frame(nil), frames...)
			stuckAt = i
		}
		j := i - 1
		for j >= 0 && !frames[j].placed {
			j--
		}
		if budget <= 0 || j < 0 {
			frames = saved
			saved = nil
			occ = occupancyOfFrames(frames)
			frames[stuckAt].failed = true
			i = stuckAt + 1
			stuckAt = -1
			continue
		}

		budget--
		backtracks++
		occ.remove(frames[j].assignment)
		frames[j].placed = false
		for k := j + 1; k <= i; k++ {
			if !frames[k].failed {
				frames[k].candidates = nil
				frames[k].next = 0
			}
		}
		i = j
	}

	placed := make([]models.Assignment, 0, len(frames))
	failures := make([]CourseHour, 0)
	failureConflicts := make([]models.Conflict, 0)
	for _, f := range frames {
		if f.placed {
			placed = append(placed, f.assignment)
			continue
		}
		failures = append(failures, f.unit)
		failureConflicts = append(failureConflicts, placementFailure(f.unit, f.failed))
	}
	sortAssignments(placed)

	set, err := NewAssignmentSet(placed)
	if err != nil {
		return nil, err
	}
	conflicts, err := DetectConflicts(catalog, set)
	if err != nil {
		return nil, err
	}
	detected := len(conflicts)
	conflicts = append(conflicts, failureConflicts...)

	return &Result{
		Assignments:       set,
		Conflicts:         conflicts,
		PlacementFailures: failures,
		Incomplete:        incomplete,
		Quality:           Evaluate(catalog, set, detected, opts),
		Stats: Stats{
			CourseHours: len(frames),
			Placed:      len(placed),
			Failed:      len(failures),
			Backtracks:  backtracks,
			Duration:    time.Since(started),
		},
	}, nil
}

// courseHours expands courses in placement order: priority weight, then larger
// enrollment, then course id, then hour.
func (p *planner) courseHours() []CourseHour {
	courses := p.catalog.Courses()
	sort.SliceStable(courses, func(i, j int) bool {
		pi, pj := p.opts.priority(courses[i].Type), p.opts.priority(courses[j].Type)
		if pi != pj {
			return pi > pj
		}
		if courses[i].ExpectedStudents != courses[j].ExpectedStudents {
			return courses[i].ExpectedStudents > courses[j].ExpectedStudents
		}
		return courses[i].ID < courses[j].ID
	})

	units := make([]CourseHour, 0)
	for _, c := range courses {
		for h := 1; h <= c.WeeklyHours; h++ {
			units = append(units, CourseHour{CourseID: c.ID, Hour: h})
		}
	}
	return units
}

// candidates enumerates (faculty, room, slot) triples for one course-hour, cheapest first.
// Strict mode applies every hard constraint against occ; relaxed mode keeps only
// qualification so repair can trade one conflict for fewer. exclude, when set, is skipped.
func (p *planner) candidates(course models.Course, occ *occupancy, exclude *models.SlotKey, relaxed bool) []candidate {
	eligible := p.catalog.EligibleFaculty(course)
	rooms := p.catalog.Rooms()
	out := make([]candidate, 0)

	for _, f := range eligible {
		if !relaxed && !occ.hasCapacity(f) {
			continue
		}
		for _, s := range p.catalog.slots {
			slot := s.Key()
			if exclude != nil && slot == *exclude {
				continue
			}
			if !relaxed && (!p.catalog.Available(f.ID, slot) || occ.facultyBusy(f.ID, slot) || occ.courseBusy(course.ID, slot)) {
				continue
			}
			for _, r := range rooms {
				if !relaxed && (r.Capacity < course.ExpectedStudents || !r.HasFeatures(course.RequiredFeatures) || occ.roomBusy(r.ID, slot)) {
					continue
				}
				out = append(out, candidate{
					facultyID: f.ID,
					roomID:    r.ID,
					slot:      slot,
					cost:      p.cost(course, eligible, f, r, slot, occ),
					tiebreak:  p.rng.Int63(),
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].cost != out[j].cost {
			return out[i].cost < out[j].cost
		}
		return out[i].tiebreak < out[j].tiebreak
	})
	return out
}

// cost is the weighted soft penalty of placing the course with f in r at slot.
func (p *planner) cost(course models.Course, eligible []models.Faculty, f models.Faculty, r models.Room, slot models.SlotKey, occ *occupancy) float64 {
	w := p.opts.Weights
	var total float64

	if w.Workload > 0 && len(eligible) > 0 {
		loads := make([]float64, len(eligible))
		for i, g := range eligible {
			loads[i] = float64(g.CommittedHours + occ.load[g.ID])
			if g.ID == f.ID {
				loads[i]++
			}
		}
		total += w.Workload * variance(loads)
	}

	if p.opts.OptimizeRoomUtilization && w.Utilization > 0 && r.Capacity > course.ExpectedStudents {
		total += w.Utilization * float64(r.Capacity-course.ExpectedStudents) / float64(r.Capacity)
	}

	if !p.opts.prefers(f.ID, slot) {
		total += w.Preference
	}

	total += w.DaySpread * float64(occ.courseDays[courseDay{courseID: course.ID, day: slot.Day}])
	return total
}

func occupancyOfFrames(frames []frame) *occupancy {
	occ := newOccupancy()
	for _, f := range frames {
		if f.placed {
			occ.add(f.assignment)
		}
	}
	return occ
}

func placementFailure(unit CourseHour, attempted bool) models.Conflict {
	message := fmt.Sprintf("no feasible faculty, room and slot for course %s hour %d", unit.CourseID, unit.Hour)
	if !attempted {
		message = fmt.Sprintf("course %s hour %d was not placed before cancellation", unit.CourseID, unit.Hour)
	}
	return models.Conflict{
		Kind:     models.ConflictPlacementFailure,
		Message:  message,
		CourseID: unit.CourseID,
		Hour:     unit.Hour,
	}
}

func sortAssignments(assignments []models.Assignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		a, b := assignments[i], assignments[j]
		if a.Slot != b.Slot {
			return a.Slot.Less(b.Slot)
		}
		if a.RoomID != b.RoomID {
			return a.RoomID < b.RoomID
		}
		return a.ID < b.ID
	})
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum, sq float64
	for _, v := range values {
		sum += v
		sq += v * v
	}
	n := float64(len(values))
	mean := sum / n
	return sq/n - mean*mean
}
