package scheduler

import "math"

// Quality scores a complete or partial timetable against the soft objectives.
type Quality struct {
	Score            float64 `json:"score"`
	WorkloadVariance float64 `json:"workload_variance"`
	UtilizationWaste float64 `json:"utilization_waste"`
	PreferenceMisses int     `json:"preference_misses"`
	DayStacking      int     `json:"day_stacking"`
	Conflicts        int     `json:"conflicts"`
}

// Evaluate computes soft-constraint quality. Score starts at 100 and loses 10 per
// conflict plus the weighted soft terms, floored at 0.
func Evaluate(catalog *Catalog, set *AssignmentSet, conflicts int, opts Options) Quality {
	assignments := set.All()
	occ := occupancyOf(assignments, "")

	loads := make([]float64, 0, len(catalog.facultyIDs))
	for _, id := range catalog.facultyIDs {
		f := catalog.faculty[id]
		loads = append(loads, float64(f.CommittedHours+occ.load[id]))
	}

	var waste float64
	misses := 0
	for _, a := range assignments {
		course, okCourse := catalog.Course(a.CourseID)
		room, okRoom := catalog.Room(a.RoomID)
		if okCourse && okRoom && room.Capacity > course.ExpectedStudents {
			waste += float64(room.Capacity-course.ExpectedStudents) / float64(room.Capacity)
		}
		if !opts.prefers(a.FacultyID, a.Slot) {
			misses++
		}
	}
	if len(assignments) > 0 {
		waste /= float64(len(assignments))
	}

	stacking := 0
	for _, n := range occ.courseDays {
		if n > 1 {
			stacking += n - 1
		}
	}

	q := Quality{
		WorkloadVariance: variance(loads),
		UtilizationWaste: waste,
		PreferenceMisses: misses,
		DayStacking:      stacking,
		Conflicts:        conflicts,
	}
	w := opts.Weights
	penalty := float64(conflicts)*10 +
		w.Workload*q.WorkloadVariance +
		w.Utilization*q.UtilizationWaste*10 +
		w.Preference*float64(misses) +
		w.DaySpread*float64(stacking)
	q.Score = math.Round(math.Max(0, 100-penalty)*100) / 100
	return q
}
