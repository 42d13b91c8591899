package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/types"
)

type JobService interface {
	Enqueue(ctx context.Context, tx *gorm.DB, jobType string, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, payload any) (*types.JobRun, error)
	GetByID(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.JobRunRepo
}

func NewJobService(db *gorm.DB, log *logger.Logger, repo repos.JobRunRepo) JobService {
	return &jobService{
		db:   db,
		log:  log.With("service", "JobService"),
		repo: repo,
	}
}

func (js *jobService) Enqueue(ctx context.Context, tx *gorm.DB, jobType string, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, payload any) (*types.JobRun, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(raw),
	}
	if entityID != uuid.Nil {
		job.EntityID = &entityID
	}
	created, err := js.repo.Create(ctx, tx, []*types.JobRun{job})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	js.log.Info("Job enqueued", "job_id", job.ID, "job_type", jobType, "owner_user_id", ownerUserID)
	return created[0], nil
}

func (js *jobService) GetByID(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := js.repo.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerUserID != ownerUserID {
		return nil, nil
	}
	return job, nil
}
