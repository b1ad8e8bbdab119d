package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
)

func TestPermissionTrainerOwnDraft(t *testing.T) {
	eval := NewPermissionEvaluator()
	record := &models.AssessmentRecord{TrainerID: "trainer-1"}
	actor := models.Actor{ID: "trainer-1", Role: models.RoleTrainer}

	assert.True(t, eval.CanEdit(record, actor))
	assert.True(t, eval.CanDelete(record, actor))
}

func TestPermissionTrainerLockedRecord(t *testing.T) {
	eval := NewPermissionEvaluator()
	record := &models.AssessmentRecord{TrainerID: "trainer-1", ExportedToAdmin: true}
	actor := models.Actor{ID: "trainer-1", Role: models.RoleTrainer}

	assert.False(t, eval.CanEdit(record, actor))
	assert.False(t, eval.CanDelete(record, actor))
}

func TestPermissionTrainerForeignRecord(t *testing.T) {
	eval := NewPermissionEvaluator()
	record := &models.AssessmentRecord{TrainerID: "trainer-1"}
	actor := models.Actor{ID: "trainer-2", Role: models.RoleTrainer}

	assert.False(t, eval.CanEdit(record, actor))
	assert.False(t, eval.CanDelete(record, actor))
}

func TestPermissionAdminAlwaysAllowed(t *testing.T) {
	eval := NewPermissionEvaluator()
	actor := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	locked := &models.AssessmentRecord{TrainerID: "trainer-1", ExportedToAdmin: true}
	assert.True(t, eval.CanEdit(locked, actor))
	assert.True(t, eval.CanDelete(locked, actor))
}

func TestPermissionEditDeleteSymmetry(t *testing.T) {
	eval := NewPermissionEvaluator()
	records := []*models.AssessmentRecord{
		{TrainerID: "trainer-1"},
		{TrainerID: "trainer-1", ExportedToAdmin: true},
		{TrainerID: "trainer-2"},
		nil,
	}
	actors := []models.Actor{
		{ID: "trainer-1", Role: models.RoleTrainer},
		{ID: "trainer-2", Role: models.RoleTrainer},
		{ID: "admin-1", Role: models.RoleAdmin},
	}
	for _, record := range records {
		for _, actor := range actors {
			assert.Equal(t, eval.CanEdit(record, actor), eval.CanDelete(record, actor))
		}
	}
}

func TestOccasionStatusTriState(t *testing.T) {
	eval := NewPermissionEvaluator()

	drafts := []models.AssessmentRecord{{}, {}}
	assert.Equal(t, models.OccasionStatusDraft, eval.OccasionStatusOf(drafts))

	mixed := []models.AssessmentRecord{{}, {ExportedToAdmin: true}}
	assert.Equal(t, models.OccasionStatusPartiallyLocked, eval.OccasionStatusOf(mixed))

	locked := []models.AssessmentRecord{{ExportedToAdmin: true}, {ExportedToAdmin: true}}
	assert.Equal(t, models.OccasionStatusFullyLocked, eval.OccasionStatusOf(locked))

	draft, exported := eval.Partition(mixed)
	assert.Equal(t, 1, draft)
	assert.Equal(t, 1, exported)
}

func TestRecordStatusFollowsExportFlag(t *testing.T) {
	eval := NewPermissionEvaluator()
	assert.Equal(t, models.RecordStatusDraft, eval.StatusOf(&models.AssessmentRecord{}))
	assert.Equal(t, models.RecordStatusLocked, eval.StatusOf(&models.AssessmentRecord{ExportedToAdmin: true}))
}
