package service

import (
	"context"

	"github.com/noah-isme/timetable-engine/internal/models"
)

type entityReader interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)
	ListGradeLevels(ctx context.Context) ([]models.GradeLevel, error)
	ListTimeslots(ctx context.Context, academicYear int, sem models.Semester) ([]models.Timeslot, error)
	ListResponsibilities(ctx context.Context, academicYear int, sem models.Semester) ([]models.TeacherResponsibility, error)
	ListPrograms(ctx context.Context, academicYear int, sem models.Semester) ([]models.Program, error)
	ListRequiredLoads(ctx context.Context, academicYear int, sem models.Semester) ([]models.RequiredLoad, error)
}

// EntityLoader assembles id-keyed entity snapshots from the read repository.
type EntityLoader struct {
	reader entityReader
}

// NewEntityLoader constructs an EntityLoader.
func NewEntityLoader(reader entityReader) *EntityLoader {
	return &EntityLoader{reader: reader}
}

// LoadSnapshot reads every entity the engine needs to validate a term.
func (l *EntityLoader) LoadSnapshot(ctx context.Context, academicYear int, sem models.Semester) (*EntitySnapshot, error) {
	rooms, err := l.reader.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	teachers, err := l.reader.ListTeachers(ctx)
	if err != nil {
		return nil, err
	}
	subjects, err := l.reader.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	grades, err := l.reader.ListGradeLevels(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := l.reader.ListTimeslots(ctx, academicYear, sem)
	if err != nil {
		return nil, err
	}
	responsibilities, err := l.reader.ListResponsibilities(ctx, academicYear, sem)
	if err != nil {
		return nil, err
	}
	programs, err := l.reader.ListPrograms(ctx, academicYear, sem)
	if err != nil {
		return nil, err
	}

	snap := &EntitySnapshot{
		Rooms:            make(map[string]models.Room, len(rooms)),
		Teachers:         make(map[string]models.Teacher, len(teachers)),
		Subjects:         make(map[string]models.Subject, len(subjects)),
		GradeLevels:      make(map[string]models.GradeLevel, len(grades)),
		Timeslots:        make(map[string]models.Timeslot, len(slots)),
		Responsibilities: make(map[string]models.TeacherResponsibility, len(responsibilities)),
		Programs:         make(map[string]models.Program, len(programs)),
	}
	for _, room := range rooms {
		snap.Rooms[room.ID] = room
	}
	for _, teacher := range teachers {
		snap.Teachers[teacher.ID] = teacher
	}
	for _, subject := range subjects {
		snap.Subjects[subject.Code] = subject
	}
	for _, grade := range grades {
		snap.GradeLevels[grade.ID] = grade
	}
	for _, slot := range slots {
		snap.Timeslots[slot.ID] = slot
	}
	for _, resp := range responsibilities {
		snap.Responsibilities[resp.ID] = resp
	}
	for _, program := range programs {
		snap.Programs[program.ID] = program
	}
	return snap, nil
}

// LoadRequiredLoad reads the curriculum's session demand for the term.
func (l *EntityLoader) LoadRequiredLoad(ctx context.Context, academicYear int, sem models.Semester) ([]models.RequiredLoad, error) {
	return l.reader.ListRequiredLoads(ctx, academicYear, sem)
}
