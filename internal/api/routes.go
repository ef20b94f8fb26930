// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/csv-agent/backend/internal/session"
	"github.com/csv-agent/backend/internal/storage"
	"github.com/csv-agent/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store             storage.Store
	SessionMgr        *session.Manager
	UploadMgr         *upload.Manager
	PreviewPageSize   int
	AllowFileDeletion bool
	Version           string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Upload    UploadHandler
	Dataset   DatasetHandler
	Ask       AskHandler
	Rules     RulesHandler
	WebSocket *WebSocketHandler

	allowFileDeletion bool
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:            NewHealthHandler(deps.Version),
		Upload:            NewUploadHandler(deps.Store, deps.UploadMgr),
		Dataset:           NewDatasetHandler(deps.Store, deps.SessionMgr, deps.PreviewPageSize),
		Ask:               NewAskHandler(deps.SessionMgr),
		Rules:             NewRulesHandler(deps.SessionMgr),
		WebSocket:         NewWebSocketHandler(deps.SessionMgr),
		allowFileDeletion: deps.AllowFileDeletion,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)
	e.GET("/api/health", handlers.Health.HandleHealth)

	// File upload routes
	uploadGroup := e.Group("/api/files")
	uploadGroup.POST("/upload", handlers.Upload.HandleUploadFile)
	uploadGroup.POST("/upload/chunk", handlers.Upload.HandleUploadChunk)
	uploadGroup.POST("/upload/complete", handlers.Upload.HandleCompleteUpload)
	uploadGroup.POST("/upload/binary", handlers.Upload.HandleUploadBinary)
	uploadGroup.GET("/upload/:jobId/status", handlers.Upload.HandleUploadJobStatus)
	uploadGroup.GET("/recent", handlers.Upload.HandleGetRecentFiles)
	uploadGroup.GET("/:id", handlers.Upload.HandleGetFile)
	if handlers.allowFileDeletion {
		uploadGroup.DELETE("/:id", handlers.Upload.HandleDeleteFile)
	}

	// Dataset routes
	datasetGroup := e.Group("/api/datasets")
	datasetGroup.POST("", handlers.Dataset.HandleCreateDataset)
	datasetGroup.GET("/active", handlers.Dataset.HandleActiveDataset)
	datasetGroup.GET("/active/records", handlers.Dataset.HandleDatasetRecords)
	datasetGroup.GET("/active/records/msgpack", handlers.Dataset.HandleDatasetRecordsMsgpack)

	// Question/answer routes
	e.POST("/api/ask", handlers.Ask.HandleAsk)

	// Agent guardrail routes
	rulesGroup := e.Group("/api/agent/rules")
	rulesGroup.GET("", handlers.Rules.HandleGetRules)
	rulesGroup.POST("", handlers.Rules.HandleUpdateRules)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/ask", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
