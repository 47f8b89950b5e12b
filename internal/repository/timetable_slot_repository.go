package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// TimetableSlotRepository manages the assignments stored for a timetable version.
type TimetableSlotRepository struct {
	db *sqlx.DB
}

// NewTimetableSlotRepository builds repository.
func NewTimetableSlotRepository(db *sqlx.DB) *TimetableSlotRepository {
	return &TimetableSlotRepository{db: db}
}

func (r *TimetableSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpsertBatch inserts or updates slots keyed by (version, assignment).
func (r *TimetableSlotRepository) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_slots (id, timetable_version_id, assignment_id, course_id, faculty_id, room_id, day_of_week, period, notes, created_at)
VALUES (:id, :timetable_version_id, :assignment_id, :course_id, :faculty_id, :room_id, :day_of_week, :period, :notes, :created_at)
ON CONFLICT (timetable_version_id, assignment_id) DO UPDATE
SET course_id = EXCLUDED.course_id,
    faculty_id = EXCLUDED.faculty_id,
    room_id = EXCLUDED.room_id,
    day_of_week = EXCLUDED.day_of_week,
    period = EXCLUDED.period,
    notes = EXCLUDED.notes`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("upsert timetable slot: %w", err)
		}
	}
	return nil
}

// ListByVersion returns slots ordered by day and period for a version.
func (r *TimetableSlotRepository) ListByVersion(ctx context.Context, versionID string) ([]models.TimetableSlot, error) {
	const query = `SELECT id, timetable_version_id, assignment_id, course_id, faculty_id, room_id, day_of_week, period, notes, created_at
FROM timetable_slots WHERE timetable_version_id = $1 ORDER BY day_of_week ASC, period ASC, room_id ASC`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, versionID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}
