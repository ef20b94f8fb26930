package upload

import (
	"bytes"
	"compress/gzip"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/csv-agent/backend/internal/models"
	"github.com/csv-agent/backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = "Name,Age,Country\nAlice,30,Nepal\nBob,25,USA\nCarol,35,nepal\n"

type ingestCall struct {
	fileID   string
	fileName string
	filePath string
}

// recordingIngestor captures CreateDataset calls and returns a fixed dataset.
type recordingIngestor struct {
	mu    sync.Mutex
	calls []ingestCall
	err   error
}

func (r *recordingIngestor) CreateDataset(fileID, fileName, filePath string) (*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ingestCall{fileID: fileID, fileName: fileName, filePath: filePath})
	if r.err != nil {
		return nil, r.err
	}
	return &models.Dataset{ID: "ds-test", FileID: fileID, FileName: fileName, RowCount: 3}, nil
}

func (r *recordingIngestor) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingIngestor) lastCall(t *testing.T) ingestCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.calls)
	return r.calls[len(r.calls)-1]
}

func newTestManager(t *testing.T, ingestor Ingestor) (*Manager, *storage.LocalStore) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)
	return NewManager(dir, store, ingestor), store
}

func saveChunks(t *testing.T, store *storage.LocalStore, uploadID string, data []byte, chunkSize int) int {
	t.Helper()
	n := 0
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		require.NoError(t, store.SaveChunkBytes(uploadID, n, data[off:end]))
		n++
	}
	return n
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func waitForJob(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.GetJob(id)
		require.True(t, ok)
		if job.Status == StatusComplete || job.Status == StatusError {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return nil
}

func TestManager_ProcessJob(t *testing.T) {
	t.Run("csv upload is assembled and ingested", func(t *testing.T) {
		ingestor := &recordingIngestor{}
		m, store := newTestManager(t, ingestor)

		raw := []byte(testCSV)
		chunks := saveChunks(t, store, "up-1", raw, 20)

		job := m.StartJob("up-1", "users.csv", chunks, int64(len(raw)), int64(len(raw)), "binary")
		done := waitForJob(t, m, job.ID)

		assert.Equal(t, StatusComplete, done.Status)
		assert.Equal(t, float64(100), done.Progress)
		require.NotNil(t, done.FileInfo)
		assert.Equal(t, "users.csv", done.FileInfo.Name)
		require.NotNil(t, done.Dataset)
		assert.Equal(t, 3, done.Dataset.RowCount)

		call := ingestor.lastCall(t)
		assert.Equal(t, done.FileInfo.ID, call.fileID)
		assert.Equal(t, "users.csv", call.fileName)
		content, err := os.ReadFile(call.filePath)
		require.NoError(t, err)
		assert.Equal(t, raw, content)
	})

	t.Run("gzip upload is decompressed before ingestion", func(t *testing.T) {
		ingestor := &recordingIngestor{}
		m, store := newTestManager(t, ingestor)

		raw := []byte(testCSV)
		compressed := gzipBytes(t, raw)
		chunks := saveChunks(t, store, "up-2", compressed, 16)

		job := m.StartJob("up-2", "users.csv.gz", chunks, int64(len(raw)), int64(len(compressed)), "gzip")
		done := waitForJob(t, m, job.ID)

		assert.Equal(t, StatusComplete, done.Status)
		require.NotNil(t, done.FileInfo)
		assert.Equal(t, "users.csv", done.FileInfo.Name)
		assert.Equal(t, int64(len(raw)), done.FileInfo.Size)
		require.NotNil(t, done.Dataset)

		call := ingestor.lastCall(t)
		assert.Equal(t, "users.csv", call.fileName)
		content, err := os.ReadFile(call.filePath)
		require.NoError(t, err)
		assert.Equal(t, raw, content)
	})

	t.Run("ingestion failure fails the job", func(t *testing.T) {
		ingestor := &recordingIngestor{err: assert.AnError}
		m, store := newTestManager(t, ingestor)

		raw := []byte(testCSV)
		chunks := saveChunks(t, store, "up-3", raw, 64)

		job := m.StartJob("up-3", "users.csv", chunks, int64(len(raw)), int64(len(raw)), "binary")
		done := waitForJob(t, m, job.ID)

		assert.Equal(t, StatusError, done.Status)
		assert.Contains(t, done.Error, "failed to ingest")
		assert.Nil(t, done.Dataset)
	})

	t.Run("missing chunk fails assembly", func(t *testing.T) {
		ingestor := &recordingIngestor{}
		m, store := newTestManager(t, ingestor)

		require.NoError(t, store.SaveChunkBytes("up-4", 0, []byte("a,b\n")))

		job := m.StartJob("up-4", "users.csv", 2, 8, 8, "binary")
		done := waitForJob(t, m, job.ID)

		assert.Equal(t, StatusError, done.Status)
		assert.Contains(t, done.Error, "failed to assemble")
		assert.Equal(t, 0, ingestor.callCount())
	})

	t.Run("non-csv upload skips ingestion", func(t *testing.T) {
		ingestor := &recordingIngestor{}
		m, store := newTestManager(t, ingestor)

		raw := []byte("just some notes")
		chunks := saveChunks(t, store, "up-5", raw, 64)

		job := m.StartJob("up-5", "notes.txt", chunks, int64(len(raw)), int64(len(raw)), "binary")
		done := waitForJob(t, m, job.ID)

		assert.Equal(t, StatusComplete, done.Status)
		assert.Nil(t, done.Dataset)
		assert.Equal(t, 0, ingestor.callCount())
	})

	t.Run("nil ingestor stops at file registration", func(t *testing.T) {
		m, store := newTestManager(t, nil)

		raw := []byte(testCSV)
		chunks := saveChunks(t, store, "up-6", raw, 64)

		job := m.StartJob("up-6", "users.csv", chunks, int64(len(raw)), int64(len(raw)), "binary")
		done := waitForJob(t, m, job.ID)

		assert.Equal(t, StatusComplete, done.Status)
		require.NotNil(t, done.FileInfo)
		assert.Nil(t, done.Dataset)
	})
}

func TestManager_CleanupOldJobs(t *testing.T) {
	m := NewManager(t.TempDir(), nil, nil)

	old := time.Now().Add(-2 * time.Hour)
	m.jobs["done-old"] = &Job{ID: "done-old", Status: StatusComplete, CompletedAt: &old}
	m.jobs["failed-old"] = &Job{ID: "failed-old", Status: StatusError, CompletedAt: &old}
	m.jobs["running"] = &Job{ID: "running", Status: StatusDecompressing}

	m.CleanupOldJobs(time.Hour)

	_, ok := m.GetJob("done-old")
	assert.False(t, ok)
	_, ok = m.GetJob("failed-old")
	assert.False(t, ok)
	_, ok = m.GetJob("running")
	assert.True(t, ok)
}
