package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridianlabs/vectord/internal/logging"
	"github.com/veridianlabs/vectord/internal/tenant"
	"github.com/veridianlabs/vectord/internal/vectorstore"
)

// Ingestor stores documents into the caller's tenant namespace.
type Ingestor struct {
	store    vectorstore.Store
	recorder StatusRecorder
	logger   *zap.Logger

	// now is injectable for tests.
	now func() time.Time
}

// IngestResult is delivered on the channel returned by Submit.
type IngestResult struct {
	JobID string
	IDs   []string
	Err   error
}

// NewIngestor creates an ingestor. recorder may be nil; a memory recorder is
// used so asynchronous failures always land somewhere observable.
func NewIngestor(store vectorstore.Store, recorder StatusRecorder, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = NewMemoryStatusRecorder()
	}
	return &Ingestor{
		store:    store,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest synchronously stores documents in the caller's namespace. The
// namespace is resolved from the context identity; a missing identity fails
// before any store access.
func (s *Ingestor) Ingest(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	ns, err := tenant.NamespaceFromContext(ctx)
	if err != nil {
		logging.For(ctx, s.logger).Warn("ingest rejected without identity", zap.Error(err))
		return nil, err
	}

	if err := s.store.EnsureNamespace(ctx, ns); err != nil {
		return nil, fmt.Errorf("ensuring namespace: %w", err)
	}

	ids, err := s.store.Add(ctx, ns, docs)
	if err != nil {
		// Embedding failure is a hard failure of the whole batch; partial
		// writes would leave unsearchable documents behind.
		return nil, fmt.Errorf("ingesting documents: %w", err)
	}

	logging.For(ctx, s.logger).Info("documents ingested",
		zap.String("namespace", ns.String()),
		zap.Int("count", len(ids)))
	return ids, nil
}

// Submit asynchronously ingests documents. The returned channel delivers
// exactly one result; the status recorder tracks the job independently, so
// a caller that abandons the channel still leaves an audit trail.
func (s *Ingestor) Submit(ctx context.Context, docs []vectorstore.Document) (string, <-chan IngestResult, error) {
	// Resolve before going async so an unauthenticated caller gets an
	// immediate error, not a failed job.
	ns, err := tenant.NamespaceFromContext(ctx)
	if err != nil {
		logging.For(ctx, s.logger).Warn("submit rejected without identity", zap.Error(err))
		return "", nil, err
	}

	jobID := uuid.NewString()
	submittedAt := s.now()
	s.recorder.Record(JobStatus{
		JobID:       jobID,
		Namespace:   ns,
		State:       JobRunning,
		DocCount:    len(docs),
		SubmittedAt: submittedAt,
	})

	results := make(chan IngestResult, 1)
	go func() {
		defer close(results)

		ids, err := s.Ingest(ctx, docs)
		status := JobStatus{
			JobID:       jobID,
			Namespace:   ns,
			State:       JobCompleted,
			DocCount:    len(docs),
			SubmittedAt: submittedAt,
			CompletedAt: s.now(),
		}
		if err != nil {
			status.State = JobFailed
			status.Error = err.Error()
			s.logger.Error("async ingestion failed",
				zap.String("job_id", jobID),
				zap.String("namespace", ns.String()),
				zap.Error(err))
		}
		s.recorder.Record(status)
		results <- IngestResult{JobID: jobID, IDs: ids, Err: err}
	}()

	return jobID, results, nil
}

// Delete removes documents from the caller's namespace.
func (s *Ingestor) Delete(ctx context.Context, ids []string) error {
	ns, err := tenant.NamespaceFromContext(ctx)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, ns, ids)
}
