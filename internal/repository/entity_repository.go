package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// EntityRepository reads the scheduling entities the engine consumes. The
// engine never writes these tables; the surrounding CRUD layer owns them.
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository constructs the repository.
func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// ListRooms returns every teaching space.
func (r *EntityRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT id, name, building, floor FROM rooms ORDER BY id`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// ListTeachers returns every staff member.
func (r *EntityRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	const query = `SELECT id, prefix, firstname, lastname, department, email, role FROM teachers ORDER BY id`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// ListSubjects returns the subject catalogue.
func (r *EntityRepository) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	const query = `SELECT code, name, credit, category, program_id FROM subjects ORDER BY code`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ListGradeLevels returns every class section.
func (r *EntityRepository) ListGradeLevels(ctx context.Context) ([]models.GradeLevel, error) {
	const query = `SELECT id, year, number, program_id FROM grade_levels ORDER BY year, number`
	var grades []models.GradeLevel
	if err := r.db.SelectContext(ctx, &grades, query); err != nil {
		return nil, fmt.Errorf("list grade levels: %w", err)
	}
	return grades, nil
}

// ListTimeslots returns the term's period grid.
func (r *EntityRepository) ListTimeslots(ctx context.Context, academicYear int, sem models.Semester) ([]models.Timeslot, error) {
	const query = `SELECT id, academic_year, semester, start_time, end_time, breaktime, day_of_week
FROM timeslots WHERE academic_year = $1 AND semester = $2 ORDER BY id`
	var slots []models.Timeslot
	if err := r.db.SelectContext(ctx, &slots, query, academicYear, sem); err != nil {
		return nil, fmt.Errorf("list timeslots: %w", err)
	}
	return slots, nil
}

// ListResponsibilities returns the term's contracted teaching loads.
func (r *EntityRepository) ListResponsibilities(ctx context.Context, academicYear int, sem models.Semester) ([]models.TeacherResponsibility, error) {
	const query = `SELECT id, teacher_id, grade_id, subject_code, academic_year, semester, teach_hour
FROM teacher_responsibilities WHERE academic_year = $1 AND semester = $2 ORDER BY id`
	var responsibilities []models.TeacherResponsibility
	if err := r.db.SelectContext(ctx, &responsibilities, query, academicYear, sem); err != nil {
		return nil, fmt.Errorf("list responsibilities: %w", err)
	}
	return responsibilities, nil
}

// ListPrograms returns the term's curriculum tracks.
func (r *EntityRepository) ListPrograms(ctx context.Context, academicYear int, sem models.Semester) ([]models.Program, error) {
	const query = `SELECT id, name, semester, academic_year
FROM programs WHERE academic_year = $1 AND semester = $2 ORDER BY id`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, academicYear, sem); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// ListRequiredLoads returns the curriculum's per-(grade, subject) session demand.
func (r *EntityRepository) ListRequiredLoads(ctx context.Context, academicYear int, sem models.Semester) ([]models.RequiredLoad, error) {
	const query = `SELECT grade_id, subject_code, sessions
FROM required_loads WHERE academic_year = $1 AND semester = $2 ORDER BY grade_id, subject_code`
	var loads []models.RequiredLoad
	if err := r.db.SelectContext(ctx, &loads, query, academicYear, sem); err != nil {
		return nil, fmt.Errorf("list required loads: %w", err)
	}
	return loads, nil
}
