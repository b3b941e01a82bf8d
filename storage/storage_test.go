package storage

import (
	"context"
	"testing"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/memstore"
	"aiforge-core/core/models"
	"aiforge-core/core/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	cs := NewContentStore(blobs, 1024)

	id, err := cs.Put(ctx, []byte("hello"))
	require.NoError(t, err)
	// CIDv1 raw sha2-256 of "hello"
	assert.Equal(t, "bafkreibm6jg3ux5qumhcn2b3flc3tyu6dmlb4xa7u5bf44yegnrjhc4yeq", id)

	again, err := cs.Put(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	data, err := cs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestContentStoreErrors(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	cs := NewContentStore(blobs, 4)

	_, err := cs.Put(ctx, []byte("too large"))
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = cs.Get(ctx, "not-a-cid")
	assert.ErrorIs(t, err, errs.ErrValidation)

	id, err := ContentID([]byte("abc"))
	require.NoError(t, err)
	_, err = cs.Get(ctx, id.String())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, blobs.Put(ctx, id.String(), []byte("tampered")))
	_, err = cs.Get(ctx, id.String())
	assert.Error(t, err)
}

func TestArtifactManager(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sched := scheduler.NewScheduler(store, nil, nil, nil, time.Second)

	now := time.Now()
	require.NoError(t, store.CreateNode(ctx, &models.Node{NodeID: "node-a", IsActive: true, LastHeartbeat: &now, MaxConcurrentJobs: 1}))
	job, err := sched.Submit(ctx, scheduler.SubmitRequest{Type: models.JobTypeFinetune})
	require.NoError(t, err)
	_, err = sched.Poll(ctx, "node-a")
	require.NoError(t, err)

	am := NewArtifactManager(NewContentStore(NewMemoryBlobStore(), 0), sched)

	_, err = am.LatestCheckpoint(ctx, job.JobID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	for step, body := range []string{"ckpt-0", "ckpt-1", "ckpt-2"} {
		_, err := am.Upload(ctx, "node-a", job.JobID, models.ArtifactTypeCheckpoint, []byte(body), map[string]interface{}{"step": step * 100})
		require.NoError(t, err)
	}
	_, err = am.Upload(ctx, "node-a", job.JobID, models.ArtifactTypeLog, []byte("log"), nil)
	require.NoError(t, err)

	latest, err := am.LatestCheckpoint(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 200, latest.MetaJSON["step"])

	_, err = am.Upload(ctx, "node-b", job.JobID, models.ArtifactTypeLog, []byte("x"), nil)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = am.Upload(ctx, "node-a", job.JobID, "weights", []byte("x"), nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestArtifactUploadByOtherNodeStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sched := scheduler.NewScheduler(store, nil, nil, nil, time.Second)

	now := time.Now()
	require.NoError(t, store.CreateNode(ctx, &models.Node{NodeID: "node-a", IsActive: true, LastHeartbeat: &now, MaxConcurrentJobs: 1}))
	job, err := sched.Submit(ctx, scheduler.SubmitRequest{Type: models.JobTypeFinetune})
	require.NoError(t, err)
	_, err = sched.Poll(ctx, "node-a")
	require.NoError(t, err)

	blobs := NewMemoryBlobStore()
	am := NewArtifactManager(NewContentStore(blobs, 0), sched)

	payload := []byte("intruder weights")
	_, err = am.Upload(ctx, "node-b", job.JobID, models.ArtifactTypeOutput, payload, nil)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = am.Upload(ctx, "node-a", "job-missing", models.ArtifactTypeOutput, payload, nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	id, err := ContentID(payload)
	require.NoError(t, err)
	_, err = blobs.Get(ctx, id.String())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	artifacts, err := sched.Artifacts(ctx, job.JobID)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}
