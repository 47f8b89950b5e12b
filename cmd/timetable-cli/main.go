package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/problem"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/config"
	"github.com/noah-isme/timetable-engine/pkg/export"
	"github.com/noah-isme/timetable-engine/pkg/logger"
)

type options struct {
	problemPath string
	seed        int64
	timeout     time.Duration
	repair      bool
	out         string
	view        string
	facultyID   string
	roomID      string
	strict      bool
	logLevel    string
}

func main() {
	var opts options
	flag.StringVarP(&opts.problemPath, "problem", "p", "", "problem YAML file (required)")
	flag.Int64Var(&opts.seed, "seed", 0, "random seed; 0 keeps the file's value")
	flag.DurationVar(&opts.timeout, "timeout", 20*time.Second, "wall-clock budget for solving")
	flag.BoolVar(&opts.repair, "repair", false, "run repair after generation, or over the file's assignments when present")
	flag.StringVarP(&opts.out, "out", "o", "", "write the timetable to .csv, .pdf or .xlsx")
	flag.StringVar(&opts.view, "view", string(models.ExportViewGrid), "export layout: grid or list")
	flag.StringVar(&opts.facultyID, "faculty", "", "export only this faculty member")
	flag.StringVar(&opts.roomID, "room", "", "export only this room")
	flag.BoolVar(&opts.strict, "strict", false, "exit with status 3 when conflicts remain")
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level")
	flag.Parse()

	logr, err := logger.New(&config.Config{Env: config.EnvDevelopment, Log: config.LogConfig{Level: opts.logLevel, Format: "console"}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logr.Sync() //nolint:errcheck

	if opts.problemPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	conflicts, err := run(context.Background(), opts, logr)
	if err != nil {
		logr.Error("timetable run failed", zap.Error(err))
		os.Exit(1)
	}
	if opts.strict && conflicts > 0 {
		os.Exit(3)
	}
}

func run(ctx context.Context, opts options, logr *zap.Logger) (int, error) {
	file, err := problem.Load(opts.problemPath)
	if err != nil {
		return 0, err
	}
	catalog, err := scheduler.NewCatalogFromProblem(file.Problem())
	if err != nil {
		return 0, err
	}

	solverOpts := file.Options
	if opts.seed != 0 {
		solverOpts.RandomSeed = opts.seed
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	var set *scheduler.AssignmentSet
	// unplaced holds placement failures; repair cannot place them, so they survive it.
	var conflicts, unplaced []models.Conflict
	if len(file.Assignments) > 0 {
		set, err = scheduler.NewAssignmentSet(file.Assignments)
		if err != nil {
			return 0, err
		}
		if err := catalog.ValidateSet(set); err != nil {
			return 0, err
		}
		if conflicts, err = scheduler.DetectConflicts(catalog, set); err != nil {
			return 0, err
		}
		logr.Info("loaded assignments", zap.Int("assignments", set.Len()), zap.Int("conflicts", len(conflicts)))
	} else {
		result, err := scheduler.Generate(ctx, catalog, solverOpts)
		if err != nil {
			return 0, err
		}
		set, conflicts = result.Assignments, result.Conflicts
		for _, c := range result.Conflicts {
			if c.Kind == models.ConflictPlacementFailure {
				unplaced = append(unplaced, c)
			}
		}
		logr.Info("generated timetable",
			zap.Int("course_hours", result.Stats.CourseHours),
			zap.Int("placed", result.Stats.Placed),
			zap.Int("failed", result.Stats.Failed),
			zap.Int("backtracks", result.Stats.Backtracks),
			zap.Duration("duration", result.Stats.Duration),
			zap.Bool("incomplete", result.Incomplete),
			zap.Float64("score", result.Quality.Score),
		)
		for _, failure := range result.PlacementFailures {
			logr.Warn("course hour not placed", zap.String("course_id", failure.CourseID), zap.Int("hour", failure.Hour))
		}
	}

	if opts.repair && len(conflicts) > 0 {
		repaired, err := scheduler.Repair(ctx, catalog, set, solverOpts)
		if err != nil {
			return 0, err
		}
		logr.Info("repair finished",
			zap.Int("before", repaired.Before),
			zap.Int("after", repaired.After),
			zap.Int("moves", len(repaired.Moves)),
			zap.Int("iterations", repaired.Iterations),
			zap.Strings("unresolved", repaired.Unresolved),
		)
		set = repaired.Assignments
		if conflicts, err = scheduler.DetectConflicts(catalog, set); err != nil {
			return 0, err
		}
		conflicts = append(conflicts, unplaced...)
	}

	for _, c := range conflicts {
		logr.Warn("conflict", zap.String("kind", string(c.Kind)), zap.String("message", c.Message))
	}
	summary := scheduler.Summarize(catalog, set, conflicts)
	logr.Info("timetable summary",
		zap.String("revision", scheduler.Fingerprint(set)),
		zap.Int("classes", summary.TotalClasses),
		zap.Int("conflicts", summary.Conflicts),
	)

	if opts.out != "" {
		if err := writeExport(catalog, set, file, opts); err != nil {
			return len(conflicts), err
		}
		logr.Info("timetable written", zap.String("path", opts.out))
	}
	return len(conflicts), nil
}

func writeExport(catalog *scheduler.Catalog, set *scheduler.AssignmentSet, file *problem.File, opts options) error {
	format, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(opts.out), "."))
	if err != nil {
		return err
	}
	renderer, err := export.RendererFor(format)
	if err != nil {
		return err
	}
	title := "Timetable"
	if file.TermID != "" || file.ProgramID != "" {
		title = strings.TrimSpace(fmt.Sprintf("Timetable %s %s", file.TermID, file.ProgramID))
	}
	dataset := service.TimetableDataset(catalog, set, models.ExportJobParams{
		Format:    string(format),
		View:      models.ExportView(opts.view),
		FacultyID: opts.facultyID,
		RoomID:    opts.roomID,
	}, title)
	payload, err := renderer.Render(dataset)
	if err != nil {
		return err
	}
	return os.WriteFile(opts.out, payload, 0o644)
}
