package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

const singleSlotProblem = `
term: 2025-odd
program: science
slots:
  - {day: 1, period: 1, start: "07:30", end: "08:15"}
rooms:
  - {id: R1, name: "Room 1", capacity: 40}
faculty:
  - {id: F1, subjects: [Math]}
  - {id: F2, subjects: [English]}
courses:
  - {id: math, subject: Math, weekly_hours: 1, expected_students: 30, type: core}
  - {id: english, subject: English, weekly_hours: 1, expected_students: 30, type: core}
options:
  random_seed: 7
`

func writeProblem(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunKeepsPlacementFailuresAfterRepair(t *testing.T) {
	path := writeProblem(t, singleSlotProblem)

	for _, repair := range []bool{false, true} {
		conflicts, err := run(context.Background(), options{
			problemPath: path,
			timeout:     5 * time.Second,
			repair:      repair,
			view:        string(models.ExportViewGrid),
		}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, 1, conflicts, "repair=%v", repair)
	}
}

func TestRunWritesExport(t *testing.T) {
	path := writeProblem(t, singleSlotProblem)
	out := filepath.Join(t.TempDir(), "timetable.csv")

	_, err := run(context.Background(), options{
		problemPath: path,
		timeout:     5 * time.Second,
		out:         out,
		view:        string(models.ExportViewList),
	}, zap.NewNop())
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Course")
}

func TestRunRejectsUnknownExportFormat(t *testing.T) {
	path := writeProblem(t, singleSlotProblem)

	_, err := run(context.Background(), options{
		problemPath: path,
		timeout:     5 * time.Second,
		out:         filepath.Join(t.TempDir(), "timetable.docx"),
		view:        string(models.ExportViewGrid),
	}, zap.NewNop())
	assert.Error(t, err)
}
