package scheduler

import "github.com/noah-isme/timetable-engine/internal/models"

// FacultyLoad reports teaching hours against the weekly cap.
type FacultyLoad struct {
	FacultyID      string  `json:"faculty_id"`
	Name           string  `json:"name,omitempty"`
	Assigned       int     `json:"assigned"`
	Committed      int     `json:"committed"`
	MaxWeeklyHours int     `json:"max_weekly_hours"`
	Utilization    float64 `json:"utilization"`
}

// RoomUsage reports how many grid slots a room is booked for.
type RoomUsage struct {
	RoomID      string  `json:"room_id"`
	Booked      int     `json:"booked"`
	Utilization float64 `json:"utilization"`
}

// Summary is the dashboard view of a timetable.
type Summary struct {
	TotalClasses  int                         `json:"total_classes"`
	Conflicts     int                         `json:"conflicts"`
	ConflictKinds map[models.ConflictKind]int `json:"conflict_kinds"`
	Faculty       int                         `json:"faculty"`
	Rooms         int                         `json:"rooms"`
	Slots         int                         `json:"slots"`
	FacultyLoads  []FacultyLoad               `json:"faculty_loads"`
	RoomUsage     []RoomUsage                 `json:"room_usage"`
}

// Summarize aggregates totals and per-resource usage.
func Summarize(catalog *Catalog, set *AssignmentSet, conflicts []models.Conflict) Summary {
	occ := occupancyOf(set.All(), "")
	summary := Summary{
		TotalClasses:  set.Len(),
		Conflicts:     len(conflicts),
		ConflictKinds: make(map[models.ConflictKind]int),
		Faculty:       len(catalog.facultyIDs),
		Rooms:         len(catalog.roomIDs),
		Slots:         len(catalog.slots),
		FacultyLoads:  make([]FacultyLoad, 0, len(catalog.facultyIDs)),
		RoomUsage:     make([]RoomUsage, 0, len(catalog.roomIDs)),
	}
	for _, c := range conflicts {
		summary.ConflictKinds[c.Kind]++
	}

	for _, f := range catalog.FacultyMembers() {
		load := FacultyLoad{
			FacultyID:      f.ID,
			Name:           f.Name,
			Assigned:       occ.load[f.ID],
			Committed:      f.CommittedHours,
			MaxWeeklyHours: f.MaxWeeklyHours,
		}
		if f.MaxWeeklyHours > 0 {
			load.Utilization = float64(load.Assigned+load.Committed) / float64(f.MaxWeeklyHours)
		}
		summary.FacultyLoads = append(summary.FacultyLoads, load)
	}

	booked := make(map[string]int)
	for key, n := range occ.rooms {
		if n > 0 {
			booked[key.id]++
		}
	}
	for _, id := range catalog.roomIDs {
		usage := RoomUsage{RoomID: id, Booked: booked[id]}
		if len(catalog.slots) > 0 {
			usage.Utilization = float64(usage.Booked) / float64(len(catalog.slots))
		}
		summary.RoomUsage = append(summary.RoomUsage, usage)
	}
	return summary
}
