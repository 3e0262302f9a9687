package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO frame_jobs (
			id, source_url, cache_key, phase_table, status, duration,
			frame_count, frame_refs, artifact_key, fallback_used, cached,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.SourceURL, job.CacheKey, job.PhaseTable, string(job.Status), job.Duration,
		job.FrameCount, refs(job.FrameRefs), job.ArtifactKey, job.FallbackUsed, job.Cached,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE frame_jobs SET
			status=$2, cache_key=$3, phase_table=$4, duration=$5, frame_count=$6,
			frame_refs=$7, artifact_key=$8, fallback_used=$9, cached=$10,
			attempt=$11, error_message=$12, updated_at=$13, completed_at=$14
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.CacheKey, job.PhaseTable, job.Duration, job.FrameCount,
		refs(job.FrameRefs), job.ArtifactKey, job.FallbackUsed, job.Cached,
		job.Attempt, job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, port.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, source_url, cache_key, phase_table, status, duration,
			frame_count, frame_refs, artifact_key, fallback_used, cached,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		FROM frame_jobs WHERE id=$1`

	job := &entity.Job{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.SourceURL, &job.CacheKey, &job.PhaseTable, &status, &job.Duration,
		&job.FrameCount, &job.FrameRefs, &job.ArtifactKey, &job.FallbackUsed, &job.Cached,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}

// refs keeps NULL out of the NOT NULL frame_refs column.
func refs(r []string) []string {
	if r == nil {
		return []string{}
	}
	return r
}
