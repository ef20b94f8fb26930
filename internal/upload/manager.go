// Package upload runs the async pipeline between a chunked upload and a
// ready-to-query dataset: assemble chunks, decompress gzip payloads, then
// ingest the CSV.
package upload

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/csv-agent/backend/internal/models"
	"github.com/google/uuid"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusIngesting     Status = "ingesting"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Job tracks one upload through the pipeline. Dataset is set once ingestion
// has made the file the active dataset.
type Job struct {
	ID             string           `json:"id"`
	UploadID       string           `json:"uploadId"`
	FileName       string           `json:"fileName"`
	TotalChunks    int              `json:"totalChunks"`
	OriginalSize   int64            `json:"originalSize"`
	CompressedSize int64            `json:"compressedSize"`
	Encoding       string           `json:"encoding"`
	Status         Status           `json:"status"`
	Progress       float64          `json:"progress"`
	Stage          string           `json:"stage"`
	StageProgress  float64          `json:"stageProgress"`
	FileInfo       *models.FileInfo `json:"fileInfo,omitempty"`
	Dataset        *models.Dataset  `json:"dataset,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
}

// Store defines the interface needed from the storage layer.
type Store interface {
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	RegisterFile(info *models.FileInfo)
}

// Ingestor turns a finished upload into the active dataset.
type Ingestor interface {
	CreateDataset(fileID, fileName, filePath string) (*models.Dataset, error)
}

// Manager handles async upload processing.
type Manager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	uploadDir string
	store     Store
	ingestor  Ingestor
}

// NewManager creates a new upload processing manager. A nil ingestor skips
// the ingestion stage; jobs then stop at file registration.
func NewManager(uploadDir string, store Store, ingestor Ingestor) *Manager {
	return &Manager{
		jobs:      make(map[string]*Job),
		uploadDir: uploadDir,
		store:     store,
		ingestor:  ingestor,
	}
}

// StartJob begins async processing of an upload.
func (m *Manager) StartJob(uploadID, fileName string, totalChunks int, originalSize, compressedSize int64, encoding string) *Job {
	job := &Job{
		ID:             uuid.New().String(),
		UploadID:       uploadID,
		FileName:       fileName,
		TotalChunks:    totalChunks,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Encoding:       encoding,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.processJob(job)

	return job
}

// GetJob retrieves a job by ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// processJob runs the pipeline stages for one job.
func (m *Manager) processJob(job *Job) {
	fmt.Printf("[UploadJob %s] Starting processing: %s\n", job.ID[:8], job.FileName)

	// Stage 1: assemble chunks into a single file
	m.setStage(job, StatusAssembling, "assembling chunks", 0)

	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.failJob(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}
	m.setStage(job, StatusAssembling, "assembling chunks", 100)

	// Stage 2: decompress gzip payloads in place
	if job.Encoding == "gzip" || job.Encoding == "binary-gzip" {
		m.setStage(job, StatusDecompressing, "decompressing file", 0)

		if err := m.decompressInPlace(job, info.ID); err != nil {
			// The payload may not actually be compressed; keep it as-is
			fmt.Printf("[UploadJob %s] Warning: decompression of %s failed: %v\n", job.ID[:8], info.ID, err)
		} else {
			info.Size = job.OriginalSize
			info.Name = strings.TrimSuffix(info.Name, ".gz")
			m.store.RegisterFile(info)
		}
		m.setStage(job, StatusDecompressing, "decompressing file", 100)
	}

	m.mu.Lock()
	job.FileInfo = info
	m.mu.Unlock()

	// Stage 3: ingest the CSV as the active dataset
	if m.ingestor != nil && strings.HasSuffix(strings.ToLower(info.Name), ".csv") {
		m.setStage(job, StatusIngesting, "ingesting rows", 0)

		path, err := m.store.GetFilePath(info.ID)
		if err != nil {
			m.failJob(job, fmt.Sprintf("failed to locate assembled file: %v", err))
			return
		}
		ds, err := m.ingestor.CreateDataset(info.ID, info.Name, path)
		if err != nil {
			m.failJob(job, fmt.Sprintf("failed to ingest %s: %v", info.Name, err))
			return
		}

		m.mu.Lock()
		job.Dataset = ds
		m.mu.Unlock()
		m.setStage(job, StatusIngesting, "ingesting rows", 100)

		fmt.Printf("[UploadJob %s] Dataset ready: %d rows from %s\n", job.ID[:8], ds.RowCount, info.Name)
	}

	m.finishJob(job)
	fmt.Printf("[UploadJob %s] Processing complete: %s (%d bytes)\n", job.ID[:8], info.ID, info.Size)
}

// progressWriter reports bytes written through it at most every 100ms.
type progressWriter struct {
	dst     io.Writer
	written int64
	total   int64
	report  func(pct float64)
	last    time.Time
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.written += int64(n)
	if w.total > 0 && time.Since(w.last) > 100*time.Millisecond {
		pct := float64(w.written) / float64(w.total) * 100
		if pct > 99 {
			pct = 99
		}
		w.report(pct)
		w.last = time.Now()
	}
	return n, err
}

// decompressInPlace replaces the stored file with its gunzipped content.
// The decompressed size must match the original size the client declared.
func (m *Manager) decompressInPlace(job *Job, fileID string) error {
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	magic := make([]byte, 2)
	if _, err := io.ReadFull(src, magic); err != nil {
		return err
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return fmt.Errorf("not a gzip file")
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}

	zr, err := gzip.NewReader(src)
	if err != nil {
		return err
	}
	defer zr.Close()

	tempPath := path + ".decompressing"
	out, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	pw := &progressWriter{
		dst:   out,
		total: job.OriginalSize,
		report: func(pct float64) {
			m.setStage(job, StatusDecompressing, "decompressing file", pct)
		},
	}
	written, err := io.Copy(pw, zr)
	out.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}

	if written != job.OriginalSize {
		os.Remove(tempPath)
		return fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", written, job.OriginalSize)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

// setStage updates job progress (thread-safe).
// Overall progress bands: assembling 0-30, decompressing 30-60, ingesting 60-100.
func (m *Manager) setStage(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.3
	case StatusDecompressing:
		job.Progress = 30 + stageProgress*0.3
	case StatusIngesting:
		job.Progress = 60 + stageProgress*0.4
	case StatusComplete:
		job.Progress = 100
	}
}

// finishJob marks a job as complete (thread-safe).
func (m *Manager) finishJob(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

// failJob marks a job as failed (thread-safe).
func (m *Manager) failJob(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	fmt.Printf("[UploadJob %s] Error: %s\n", job.ID[:8], errMsg)
}

// CleanupOldJobs removes finished jobs older than the given age.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status != StatusComplete && job.Status != StatusError {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
