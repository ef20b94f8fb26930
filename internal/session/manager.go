// Package session owns the single active dataset and runs the
// question/answer cycle against it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/csv-agent/backend/internal/agent"
	"github.com/csv-agent/backend/internal/docstore"
	"github.com/csv-agent/backend/internal/ingest"
	"github.com/csv-agent/backend/internal/models"
	"github.com/google/uuid"
)

// ErrNoDataset is returned when a question or preview arrives before any
// CSV has been loaded.
var ErrNoDataset = errors.New("no active dataset")

// Manager guards the one active dataset. Creating a dataset from a new file
// fully replaces the previous one; last writer wins.
type Manager struct {
	mu         sync.RWMutex
	dataset    *models.Dataset
	collection docstore.Collection
	rules      *models.AgentRules

	agent         *agent.Agent
	tempDir       string
	duckThreshold int
	duckOpts      docstore.DuckOptions
}

// NewManager creates a manager. Datasets with more rows than duckThreshold
// are stored in DuckDB instead of memory.
func NewManager(ag *agent.Agent, tempDir string, duckThreshold int, duckOpts docstore.DuckOptions) *Manager {
	return &Manager{
		agent:         ag,
		tempDir:       tempDir,
		duckThreshold: duckThreshold,
		duckOpts:      duckOpts,
		rules:         models.DefaultAgentRules(),
	}
}

// CreateDataset ingests the CSV at filePath and makes it the active dataset,
// dropping whatever was loaded before.
func (m *Manager) CreateDataset(fileID, fileName, filePath string) (*models.Dataset, error) {
	start := time.Now()
	datasetID := uuid.New().String()

	fmt.Printf("[Dataset %s] Ingesting %s\n", datasetID[:8], fileName)

	result, err := ingest.ParseFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("ingesting csv: %w", err)
	}

	ds := &models.Dataset{
		ID:        datasetID,
		FileID:    fileID,
		FileName:  fileName,
		Fields:    result.Fields,
		RowCount:  len(result.Records),
		Backend:   "memory",
		CreatedAt: time.Now(),
	}

	var coll docstore.Collection
	if m.duckThreshold > 0 && len(result.Records) > m.duckThreshold {
		ds.Backend = "duckdb"
		coll, err = docstore.NewDuckCollection(m.tempDir, datasetID, result.Fields, result.Records, m.duckOpts)
		if err != nil {
			return nil, fmt.Errorf("creating duckdb collection: %w", err)
		}
	} else {
		coll = docstore.NewMemoryCollection(result.Records)
	}

	m.mu.Lock()
	old := m.collection
	m.dataset = ds
	m.collection = coll
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	fmt.Printf("[Dataset %s] Ready: %d rows, %d fields, backend=%s (%v)\n",
		datasetID[:8], ds.RowCount, len(ds.Fields), ds.Backend, time.Since(start))

	return ds, nil
}

// ActiveDataset returns the current dataset metadata.
func (m *Manager) ActiveDataset() (*models.Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dataset == nil {
		return nil, false
	}
	return m.dataset, true
}

// Records returns one preview page of the active dataset along with the
// total row count.
func (m *Manager) Records(ctx context.Context, page, pageSize int) ([]models.Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.collection == nil {
		return nil, 0, ErrNoDataset
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	records, err := m.collection.Slice(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return records, m.collection.Len(), nil
}

// Translate converts a question into a validated query against the active
// dataset's schema.
func (m *Manager) Translate(ctx context.Context, question string) (*agent.Translation, error) {
	m.mu.RLock()
	ds := m.dataset
	rules := m.rules
	m.mu.RUnlock()

	if ds == nil {
		return nil, ErrNoDataset
	}

	return m.agent.Translate(ctx, ds, rules, question)
}

// Execute runs a validated query and shapes the result for display.
// Collection failures come back as *agent.ExecutionError.
func (m *Manager) Execute(ctx context.Context, tr *agent.Translation) (*models.ResultSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.collection == nil {
		return nil, ErrNoDataset
	}

	spec := tr.Query
	switch {
	case spec.Operation == models.OpCount:
		count, err := m.collection.Count(ctx, tr.Filter)
		if err != nil {
			return nil, &agent.ExecutionError{Err: err}
		}
		return &models.ResultSet{Kind: models.ResultKindCount, Count: count}, nil

	case spec.IsAggregate():
		res, err := m.collection.Aggregate(ctx, spec.Operation, spec.Field, tr.Filter)
		if err != nil {
			return nil, &agent.ExecutionError{Err: err}
		}
		return &models.ResultSet{
			Kind:      models.ResultKindAggregate,
			Count:     res.Count,
			Value:     res.Value,
			Operation: spec.Operation,
		}, nil

	default:
		records, truncated, err := m.collection.Find(ctx, tr.Filter, spec.Fields, m.rules.FindLimit)
		if err != nil {
			return nil, &agent.ExecutionError{Err: err}
		}
		if records == nil {
			records = []models.Record{}
		}
		return &models.ResultSet{
			Kind:      models.ResultKindRecords,
			Count:     len(records),
			Records:   records,
			Truncated: truncated,
		}, nil
	}
}

// Ask runs the full question cycle: translate, execute, bundle the answer.
func (m *Manager) Ask(ctx context.Context, question string) (*models.Answer, error) {
	start := time.Now()

	tr, err := m.Translate(ctx, question)
	if err != nil {
		return nil, err
	}

	result, err := m.Execute(ctx, tr)
	if err != nil {
		return nil, err
	}

	return &models.Answer{
		Question:  question,
		Thinking:  tr.Thinking,
		Query:     tr.Query,
		RawQuery:  tr.Raw,
		Result:    result,
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

// Rules returns the active guardrail rules.
func (m *Manager) Rules() *models.AgentRules {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rules
}

// SetRules replaces the guardrail rules.
func (m *Manager) SetRules(rules *models.AgentRules) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rules
}

// Close releases the active collection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collection != nil {
		m.collection.Close()
		m.collection = nil
	}
	m.dataset = nil
}
