package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

func setupRepository(t *testing.T) *JobRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(connStr, "../../../migrations"))

	pool, err := pgxpool.New(context.Background(), connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewJobRepository(pool)
}

func TestJobRepositoryRoundTrip(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	job := entity.NewJob("https://example.com/v.mp4", 3)
	job.PhaseTable = "v1"
	job.CacheKey = "abc123"
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusPending, got.Status)
	assert.Equal(t, job.SourceURL, got.SourceURL)
	assert.Empty(t, got.FrameRefs)
	assert.Nil(t, got.CompletedAt)

	job.MarkProcessing()
	job.MarkCompleted("jobs/x/frames.zip", []string{"jobs/x/a.jpg", "jobs/x/b.jpg"}, 200, true)
	require.NoError(t, repo.Update(ctx, job))

	got, err = repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, got.Status)
	assert.Equal(t, []string{"jobs/x/a.jpg", "jobs/x/b.jpg"}, got.FrameRefs)
	assert.Equal(t, 2, got.FrameCount)
	assert.True(t, got.FallbackUsed)
	assert.Equal(t, 1, got.Attempt)
	require.NotNil(t, got.CompletedAt)
}

func TestJobRepositoryNotFound(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, port.ErrJobNotFound)

	err = repo.Update(ctx, entity.NewJob("x", 1))
	assert.ErrorIs(t, err, port.ErrJobNotFound)
}
