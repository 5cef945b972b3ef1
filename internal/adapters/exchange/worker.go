package exchange

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ratecore/internal/blob"
	"ratecore/internal/core"
	"ratecore/pkg/domain"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures a stored workbook artifact.
type ExportArtifact struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportRecord tracks an export request and its resulting artifact.
type ExportRecord struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	Scenario    domain.Scenario `json:"scenario,omitempty"`
	Status      ExportStatus    `json:"status"`
	Error       string          `json:"error,omitempty"`
	Artifact    *ExportArtifact `json:"artifact,omitempty"`
	RequestedBy string          `json:"requested_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (r ExportRecord) copy() ExportRecord {
	cp := r
	if r.Artifact != nil {
		artifact := *r.Artifact
		cp.Artifact = &artifact
	}
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		cp.CompletedAt = &completed
	}
	return cp
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	ProductID   string
	Scenario    domain.Scenario
	RequestedBy string
}

// Worker renders step-sequence workbooks asynchronously and stores them as
// blob artifacts.
type Worker struct {
	store     domain.PersistentStore
	artifacts blob.Store
	audit     core.AuditSink

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs an export worker over the given step store and
// artifact store.
func NewWorker(store domain.PersistentStore, artifacts blob.Store, audit core.AuditSink) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:     store,
		artifacts: artifacts,
		audit:     audit,
		queue:     make(chan string, 32),
		jobs:      make(map[string]*ExportRecord),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if strings.TrimSpace(input.ProductID) == "" {
		return ExportRecord{}, fmt.Errorf("product id required")
	}
	if _, ok := w.store.GetProduct(input.ProductID); !ok {
		return ExportRecord{}, fmt.Errorf("product %s not found", input.ProductID)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		ProductID:   input.ProductID,
		Scenario:    input.Scenario,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, "export_queued", input.ProductID, id, "")

	select {
	case w.queue <- id:
	default:
		// The caller already gets the error; keeping a failed record
		// around would grow the jobs map without bound under sustained
		// rejection.
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		w.recordAudit(ctx, "export_failed", input.ProductID, id, "export queue full")
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(id string) {
	record, ok := w.GetExport(id)
	if !ok {
		return
	}
	w.updateStatus(id, ExportStatusRunning, "")

	product, ok := w.store.GetProduct(record.ProductID)
	if !ok {
		w.fail(id, fmt.Sprintf("product %s not found", record.ProductID))
		return
	}
	steps := domain.FilterSteps(w.store.ListSteps(record.ProductID), record.Scenario)
	payload, err := ExportDocument(ExportMeta{ProductName: product.Name, GeneratedAt: time.Now().UTC()}, steps)
	if err != nil {
		w.fail(id, err.Error())
		return
	}

	key := fmt.Sprintf("exports/%s.csv", id)
	info, err := w.artifacts.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"product_id": record.ProductID},
	})
	if err != nil {
		w.fail(id, err.Error())
		return
	}

	w.complete(id, ExportArtifact{
		ID:          uuid.NewString(),
		Key:         info.Key,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		URL:         info.URL,
		CreatedAt:   info.LastModified,
	})
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = time.Now().UTC()
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifact ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	var productID string
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifact = &artifact
		record.UpdatedAt = now
		record.CompletedAt = &now
		productID = record.ProductID
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, "export_succeeded", productID, id, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var productID string
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		productID = record.ProductID
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, "export_failed", productID, id, reason)
}

func (w *Worker) recordAudit(ctx context.Context, operation, productID, jobID, message string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, core.AuditEntry{
		Operation:  operation,
		ProductID:  productID,
		StepID:     jobID,
		Error:      message,
		OccurredAt: time.Now().UTC(),
	})
}
