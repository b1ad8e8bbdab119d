package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
)

// RosterStore reads the student and group roster maintained upstream.
type RosterStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// GroupStore reads the group roster.
type GroupStore interface {
	List(ctx context.Context, year int) ([]models.Group, error)
	FindByID(ctx context.Context, id string) (*models.Group, error)
}

// RosterService exposes read-only roster lookups. Roster writes happen in
// the upstream student administration system.
type RosterService struct {
	students RosterStore
	groups   GroupStore
	logger   *zap.Logger
}

// NewRosterService constructs the roster service.
func NewRosterService(students RosterStore, groups GroupStore, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{students: students, groups: groups, logger: logger}
}

// ListStudents returns roster entries matching the filter.
func (s *RosterService) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	students, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// GetStudent returns one roster entry.
func (s *RosterService) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// ListGroups returns groups, optionally restricted to one year.
func (s *RosterService) ListGroups(ctx context.Context, year int) ([]models.Group, error) {
	groups, err := s.groups.List(ctx, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}

// GetGroup returns one group.
func (s *RosterService) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}
