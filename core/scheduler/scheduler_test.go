package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/memstore"
	"aiforge-core/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAnnouncer struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (a *recordingAnnouncer) Announce(_ context.Context, jobID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, jobID)
	if a.fail {
		return errors.New("queue down")
	}
	return nil
}

func addNode(t *testing.T, store *memstore.Store, id string, gpu bool, capacity int) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.CreateNode(context.Background(), &models.Node{
		NodeID:            id,
		Name:              id,
		IsActive:          true,
		LastHeartbeat:     &now,
		MaxConcurrentJobs: capacity,
		GPUEnabled:        gpu,
	}))
}

func submit(t *testing.T, s *Scheduler, gpus int) *models.Job {
	t.Helper()
	job, err := s.Submit(context.Background(), SubmitRequest{
		Type:         models.JobTypeInference,
		Requirements: models.JobRequirements{GPUs: gpus},
	})
	require.NoError(t, err)
	return job
}

func setup(t *testing.T) (*Scheduler, *memstore.Store, *recordingAnnouncer) {
	store := memstore.New()
	ann := &recordingAnnouncer{}
	return NewScheduler(store, ann, nil, nil, time.Second), store, ann
}

func TestPollAtCapacity(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "node-a", false, 1)

	job := submit(t, s, 0)
	submit(t, s, 0)

	got, err := s.Poll(ctx, "node-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, models.JobStatusAssigned, got.Status)
	assert.Equal(t, "node-a", *got.NodeID)
	assert.NotNil(t, got.StartedAt)

	got, err = s.Poll(ctx, "node-a")
	assert.ErrorIs(t, err, ErrAtCapacity)
	assert.Nil(t, got)
}

func TestPollMatchesGPU(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "cpu", false, 4)
	addNode(t, store, "gpu", true, 4)

	gpuJob := submit(t, s, 1)

	got, err := s.Poll(ctx, "cpu")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Poll(ctx, "gpu")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, gpuJob.JobID, got.JobID)
}

func TestPollOldestFirst(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "node-a", true, 3)

	first := submit(t, s, 0)
	second := submit(t, s, 0)

	got, err := s.Poll(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, first.JobID, got.JobID)
	got, err = s.Poll(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, second.JobID, got.JobID)
}

func TestPollRejectsInactiveAndStaleNodes(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := NewScheduler(store, nil, nil, func() time.Time { return time.Now().Add(-time.Minute) }, time.Second)

	addNode(t, store, "off", false, 1)
	require.NoError(t, store.SetNodeActive(ctx, "off", false))
	_, err := s.Poll(ctx, "off")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	addNode(t, store, "silent", false, 1)
	require.NoError(t, store.TouchNode(ctx, "silent", time.Now().Add(-time.Hour), nil))
	_, err = s.Poll(ctx, "silent")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = s.Poll(ctx, "ghost")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestConcurrentPollsNeverShareAJob(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)

	for i := 0; i < 5; i++ {
		submit(t, s, 0)
	}
	nodes := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}
	for _, id := range nodes {
		addNode(t, store, id, false, 1)
	}

	var (
		mu      sync.Mutex
		claimed = map[string]string{}
		wg      sync.WaitGroup
	)
	for _, id := range nodes {
		wg.Add(1)
		go func(nodeID string) {
			defer wg.Done()
			job, err := s.Poll(ctx, nodeID)
			if err != nil || job == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, dup := claimed[job.JobID]
			assert.False(t, dup, "job %s claimed twice", job.JobID)
			claimed[job.JobID] = nodeID
		}(id)
	}
	wg.Wait()
	assert.Len(t, claimed, 5)
}

func TestConcurrentPollsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "node-a", false, 2)
	for i := 0; i < 10; i++ {
		submit(t, s, 0)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Poll(ctx, "node-a")
		}()
	}
	wg.Wait()

	inFlight := 0
	jobs, err := s.List(ctx, models.JobFilter{NodeID: "node-a"})
	require.NoError(t, err)
	for _, j := range jobs {
		if j.Status.InFlight() {
			inFlight++
		}
	}
	assert.Equal(t, 2, inFlight)
}

func TestReportStatusOwnership(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "owner", false, 1)
	addNode(t, store, "intruder", false, 1)
	job := submit(t, s, 0)

	_, err := s.Poll(ctx, "owner")
	require.NoError(t, err)

	running := models.JobStatusRunning
	_, err = s.ReportStatus(ctx, "intruder", job.JobID, StatusReport{Status: &running})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = s.Complete(ctx, "intruder", job.JobID, Completion{})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = s.RecordArtifact(ctx, "intruder", job.JobID, models.ArtifactTypeLog, "bafy", 1, nil)
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestErrorForcesFailedAndCountsIt(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "node-a", false, 1)
	job := submit(t, s, 0)
	_, err := s.Poll(ctx, "node-a")
	require.NoError(t, err)

	running := models.JobStatusRunning
	progress := 0.4
	got, err := s.ReportStatus(ctx, "node-a", job.JobID, StatusReport{Status: &running, Progress: &progress})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, 0.4, got.Progress)

	msg := "CUDA out of memory"
	got, err = s.ReportStatus(ctx, "node-a", job.JobID, StatusReport{Status: &running, Error: &msg})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, msg, got.Error)
	assert.NotNil(t, got.CompletedAt)

	node, err := store.GetNode(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, 1, node.TotalJobsFailed)
	assert.Equal(t, 0, node.TotalJobsCompleted)

	_, err = s.ReportStatus(ctx, "node-a", job.JobID, StatusReport{Status: &running})
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestReportStatusRejectsCompletion(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "node-a", false, 1)
	job := submit(t, s, 0)
	_, err := s.Poll(ctx, "node-a")
	require.NoError(t, err)

	completed := models.JobStatusCompleted
	_, err = s.ReportStatus(ctx, "node-a", job.JobID, StatusReport{Status: &completed})
	assert.ErrorIs(t, err, errs.ErrValidation)

	bad := 1.5
	_, err = s.ReportStatus(ctx, "node-a", job.JobID, StatusReport{Progress: &bad})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestCompleteFreesCapacity(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "node-a", false, 1)
	first := submit(t, s, 0)
	second := submit(t, s, 0)

	_, err := s.Poll(ctx, "node-a")
	require.NoError(t, err)

	got, err := s.Complete(ctx, "node-a", first.JobID, Completion{
		Result:    map[string]interface{}{"loss": 0.12},
		OutputCID: "bafyout",
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, "bafyout", got.OutputCID)
	assert.NotNil(t, got.CompletedAt)

	node, err := store.GetNode(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, 1, node.TotalJobsCompleted)

	_, err = s.Complete(ctx, "node-a", first.JobID, Completion{})
	assert.ErrorIs(t, err, errs.ErrConflict)

	next, err := s.Poll(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, second.JobID, next.JobID)

	events, err := s.Events(ctx, first.JobID)
	require.NoError(t, err)
	var path []models.JobStatus
	for _, e := range events {
		path = append(path, e.ToStatus)
	}
	assert.Equal(t, []models.JobStatus{models.JobStatusPending, models.JobStatusAssigned, models.JobStatusCompleted}, path)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	s, store, _ := setup(t)
	addNode(t, store, "node-a", false, 1)

	pending := submit(t, s, 0)
	got, err := s.Cancel(ctx, pending.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)

	_, err = s.Cancel(ctx, pending.JobID)
	assert.ErrorIs(t, err, errs.ErrConflict)

	job := submit(t, s, 0)
	_, err = s.Poll(ctx, "node-a")
	require.NoError(t, err)
	running := models.JobStatusRunning
	_, err = s.ReportStatus(ctx, "node-a", job.JobID, StatusReport{Status: &running})
	require.NoError(t, err)

	_, err = s.Cancel(ctx, job.JobID)
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = s.Cancel(ctx, "job-missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	s, store, ann := setup(t)
	addNode(t, store, "node-a", false, 1)
	job := submit(t, s, 0)

	_, err := s.Retry(ctx, job.JobID)
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = s.Poll(ctx, "node-a")
	require.NoError(t, err)
	msg := "boom"
	_, err = s.ReportStatus(ctx, "node-a", job.JobID, StatusReport{Error: &msg})
	require.NoError(t, err)

	got, err := s.Retry(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.NodeID)
	assert.Nil(t, got.StartedAt)
	assert.Zero(t, got.Progress)
	assert.Equal(t, []string{job.JobID, job.JobID}, ann.ids)

	again, err := s.Poll(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, job.JobID, again.JobID)
}

func TestSubmitSurvivesAnnounceFailure(t *testing.T) {
	store := memstore.New()
	ann := &recordingAnnouncer{fail: true}
	s := NewScheduler(store, ann, nil, nil, time.Second)

	job, err := s.Submit(context.Background(), SubmitRequest{Type: models.JobTypeFinetune})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Len(t, ann.ids, 1)

	_, err = s.Get(context.Background(), job.JobID)
	require.NoError(t, err)
}

func TestSubmitValidation(t *testing.T) {
	s, _, _ := setup(t)

	_, err := s.Submit(context.Background(), SubmitRequest{Type: "train"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.Submit(context.Background(), SubmitRequest{Type: models.JobTypeTest, Requirements: models.JobRequirements{GPUs: -1}})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestMultiAnnouncerJoinsErrors(t *testing.T) {
	ok := &recordingAnnouncer{}
	bad := &recordingAnnouncer{fail: true}

	err := MultiAnnouncer{ok, bad}.Announce(context.Background(), "job-1")
	assert.Error(t, err)
	assert.Equal(t, []string{"job-1"}, ok.ids)
}
