package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"
	"time"

	"kyc-verification-server/models"
	"kyc-verification-server/storage"

	"github.com/google/uuid"
	"github.com/kataras/golog"
)

type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportDone       ExportStatus = "done"
	ExportFailed     ExportStatus = "failed"
)

const exportTimeout = 5 * time.Minute

// ExportRetention is how long a finished job and its CSV are kept.
const ExportRetention = 24 * time.Hour

var exportHeader = []string{
	"id", "document_number", "user_id", "kyc_status", "current_step", "address",
	"failure_reason", "admin_notes", "reviewed_by", "reviewed_at", "kyc_completed_at", "created_at",
}

type ExportJob struct {
	ID          string       `json:"id"`
	Status      ExportStatus `json:"status"`
	Filter      ExportFilter `json:"filter"`
	Rows        int          `json:"rows"`
	Path        string       `json:"-"`
	Error       string       `json:"error,omitempty"`
	RequestedBy uuid.UUID    `json:"requested_by"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

type ExportFilter struct {
	Status models.KycStatus `json:"status,omitempty"`
	Query  string           `json:"q,omitempty"`
}

// ExportService writes CSV snapshots of KYC records to object storage in the
// background.
type ExportService struct {
	customers storage.CustomerStore
	store     storage.ObjectStore
	signer    *storage.URLSigner
	log       *golog.Logger
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]*ExportJob
	wg   sync.WaitGroup
}

func NewExportService(customers storage.CustomerStore, store storage.ObjectStore, signer *storage.URLSigner, log *golog.Logger) *ExportService {
	if log == nil {
		log = golog.Default
	}
	return &ExportService{customers: customers, store: store, signer: signer, log: log, now: time.Now, jobs: map[string]*ExportJob{}}
}

// Start queues an export and returns a snapshot of the new job.
func (s *ExportService) Start(requestedBy uuid.UUID, filter ExportFilter) ExportJob {
	job := &ExportJob{
		ID:          uuid.NewString(),
		Status:      ExportPending,
		Filter:      filter,
		RequestedBy: requestedBy,
		CreatedAt:   s.now(),
	}
	job.Path = "exports/" + job.ID + ".csv"
	s.mu.Lock()
	expired := s.pruneLocked()
	s.jobs[job.ID] = job
	snapshot := *job
	s.mu.Unlock()
	s.removeFiles(expired)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		s.run(ctx, job)
	}()
	return snapshot
}

func (s *ExportService) setStatus(job *ExportJob, status ExportStatus, rows int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = status
	job.Rows = rows
	if err != nil {
		job.Error = err.Error()
	}
	if status == ExportDone || status == ExportFailed {
		now := s.now()
		job.FinishedAt = &now
	}
}

func (s *ExportService) run(ctx context.Context, job *ExportJob) {
	s.setStatus(job, ExportProcessing, 0, nil)
	data, rows, err := s.render(ctx, job.Filter)
	if err == nil {
		err = s.store.Put(ctx, job.Path, data, "text/csv")
	}
	if err != nil {
		s.log.Warnf("export %s failed: %v", job.ID, err)
		s.setStatus(job, ExportFailed, rows, err)
		return
	}
	s.setStatus(job, ExportDone, rows, nil)
}

func (s *ExportService) render(ctx context.Context, filter ExportFilter) ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, 0, err
	}
	rows := 0
	page := storage.CustomerFilter{Status: filter.Status, Query: filter.Query, Page: 1, PerPage: 100}
	for {
		batch, total, err := s.customers.List(ctx, page)
		if err != nil {
			return nil, rows, fmt.Errorf("list records: %w", err)
		}
		for i := range batch {
			if err := w.Write(exportRow(&batch[i])); err != nil {
				return nil, rows, err
			}
			rows++
		}
		if len(batch) == 0 || int64(page.Page*page.PerPage) >= total {
			break
		}
		page.Page++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, rows, err
	}
	return buf.Bytes(), rows, nil
}

func exportRow(c *models.Customer) []string {
	return []string{
		c.ID.String(),
		c.DocumentNumber,
		c.UserID.String(),
		string(canonicalStatus(c.KycStatus)),
		string(c.CurrentStep),
		csvSafe(c.Address),
		csvSafe(c.FailureReason),
		csvSafe(c.AdminNotes),
		uuidCell(c.ReviewedBy),
		timeCell(c.ReviewedAt),
		timeCell(c.KycCompletedAt),
		c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// csvSafe stops spreadsheet apps from evaluating free text as a formula.
func csvSafe(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func uuidCell(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Get returns a job snapshot and, once the job is done, a signed download URL.
func (s *ExportService) Get(id string) (ExportJob, string, error) {
	s.mu.Lock()
	expired := s.pruneLocked()
	job, ok := s.jobs[id]
	var snapshot ExportJob
	if ok {
		snapshot = *job
	}
	s.mu.Unlock()
	s.removeFiles(expired)
	if !ok {
		return ExportJob{}, "", ErrNotFound
	}
	if snapshot.Status != ExportDone {
		return snapshot, "", nil
	}
	u, err := s.signer.Sign(snapshot.Path)
	if err != nil {
		return snapshot, "", err
	}
	return snapshot, u, nil
}

// pruneLocked drops jobs that finished more than ExportRetention ago and
// returns the object paths they wrote. s.mu must be held.
func (s *ExportService) pruneLocked() []string {
	cutoff := s.now().Add(-ExportRetention)
	var paths []string
	for id, job := range s.jobs {
		if job.FinishedAt == nil || job.FinishedAt.After(cutoff) {
			continue
		}
		delete(s.jobs, id)
		if job.Status == ExportDone {
			paths = append(paths, job.Path)
		}
	}
	return paths
}

func (s *ExportService) removeFiles(paths []string) {
	for _, p := range paths {
		if err := s.store.Delete(context.Background(), p); err != nil {
			s.log.Warnf("remove expired export %s: %v", p, err)
		}
	}
}

// Wait blocks until every running export has finished.
func (s *ExportService) Wait() { s.wg.Wait() }
