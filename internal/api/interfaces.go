// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/csv-agent/backend/internal/agent"
	"github.com/csv-agent/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// UploadHandler handles file upload operations
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleUploadJobStatus(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// DatasetHandler handles dataset lifecycle and preview operations
type DatasetHandler interface {
	HandleCreateDataset(c echo.Context) error
	HandleActiveDataset(c echo.Context) error
	HandleDatasetRecords(c echo.Context) error
	HandleDatasetRecordsMsgpack(c echo.Context) error
}

// AskHandler handles the question/answer cycle
type AskHandler interface {
	HandleAsk(c echo.Context) error
}

// RulesHandler handles agent guardrail configuration
type RulesHandler interface {
	HandleGetRules(c echo.Context) error
	HandleUpdateRules(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// DatasetManager defines the interface for dataset session management
// This allows mocking in tests
type DatasetManager interface {
	CreateDataset(fileID, fileName, filePath string) (*models.Dataset, error)
	ActiveDataset() (*models.Dataset, bool)
	Records(ctx context.Context, page, pageSize int) ([]models.Record, int, error)
	Translate(ctx context.Context, question string) (*agent.Translation, error)
	Execute(ctx context.Context, tr *agent.Translation) (*models.ResultSet, error)
	Ask(ctx context.Context, question string) (*models.Answer, error)
	Rules() *models.AgentRules
	SetRules(rules *models.AgentRules)
}
