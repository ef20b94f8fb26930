// Package testutil provides in-memory doubles for the storage and model
// layers used across handler and pipeline tests.
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/csv-agent/backend/internal/models"
	"github.com/csv-agent/backend/internal/storage"
)

type storedFile struct {
	info *models.FileInfo
	data []byte
}

// MockStorage is an in-memory storage.Store. Files live only in maps;
// GetFilePath returns a fake path, so use MockStorageWithTempDir for any
// test that reads the CSV back from disk.
type MockStorage struct {
	mu     sync.RWMutex
	byID   map[string]*storedFile
	order  []string
	chunks map[string]map[int][]byte
	nextID int
}

// NewMockStorage creates an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		byID:   make(map[string]*storedFile),
		chunks: make(map[string]map[int][]byte),
	}
}

var _ storage.Store = (*MockStorage)(nil)

func (m *MockStorage) newID() string {
	m.nextID++
	return fmt.Sprintf("mock-file-%d", m.nextID)
}

func (m *MockStorage) put(id, name string, data []byte) *models.FileInfo {
	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}
	m.byID[id] = &storedFile{info: info, data: data}
	m.order = append(m.order, id)
	return info
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, data)
}

func (m *MockStorage) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(m.newID(), name, data), nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.byID[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	return f.info, nil
}

// List returns files newest-first, capped at limit when limit > 0.
func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.FileInfo
	for i := len(m.order) - 1; i >= 0; i-- {
		f, ok := m.byID[m.order[i]]
		if !ok {
			continue
		}
		files = append(files, f.info)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return errors.New("file not found")
	}
	delete(m.byID, id)
	return nil
}

func (m *MockStorage) RegisterFile(info *models.FileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.byID[info.ID]; ok {
		f.info = info
		return
	}
	m.byID[info.ID] = &storedFile{info: info}
	m.order = append(m.order, info.ID)
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	return "/testdata/" + id, nil
}

func (m *MockStorage) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return m.SaveChunkBytes(uploadID, chunkIndex, data)
}

func (m *MockStorage) SaveChunkBytes(uploadID string, chunkIndex int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chunks[uploadID] == nil {
		m.chunks[uploadID] = make(map[int][]byte)
	}
	m.chunks[uploadID][chunkIndex] = data
	return nil
}

func (m *MockStorage) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uploadChunks, ok := m.chunks[uploadID]
	if !ok {
		return nil, errors.New("upload not found")
	}

	var buf bytes.Buffer
	for i := 0; i < totalChunks; i++ {
		chunk, ok := uploadChunks[i]
		if !ok {
			return nil, fmt.Errorf("missing chunk %d", i)
		}
		buf.Write(chunk)
	}
	delete(m.chunks, uploadID)

	return m.put(m.newID(), name, buf.Bytes()), nil
}

// AddFile seeds the store with a file under a caller-chosen ID.
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(id, name, data)
}

// GetFileCount returns the number of stored files.
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// MockStorageWithTempDir is a MockStorage that also writes seeded files to a
// temp directory so ingestion can open them from disk.
type MockStorageWithTempDir struct {
	MockStorage
	tempDir string
}

// NewMockStorageWithTempDir creates a store backed by tempDir for file reads.
func NewMockStorageWithTempDir(tempDir string) *MockStorageWithTempDir {
	return &MockStorageWithTempDir{
		MockStorage: MockStorage{
			byID:   make(map[string]*storedFile),
			chunks: make(map[string]map[int][]byte),
		},
		tempDir: tempDir,
	}
}

// AddFile writes the CSV to disk and registers it.
func (m *MockStorageWithTempDir) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.tempDir, id+"_"+name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		panic(fmt.Sprintf("failed to write test file: %v", err))
	}
	return m.put(id, name, data)
}

// GetFilePath returns the on-disk path of a seeded file.
func (m *MockStorageWithTempDir) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.byID[id]
	if !ok {
		return "", errors.New("file not found")
	}
	return filepath.Join(m.tempDir, id+"_"+f.info.Name), nil
}
