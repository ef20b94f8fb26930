// handlers_dataset.go - Dataset lifecycle and preview handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/csv-agent/backend/internal/models"
	"github.com/csv-agent/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// DatasetHandlerImpl implements the DatasetHandler interface
type DatasetHandlerImpl struct {
	store           storage.Store
	manager         DatasetManager
	previewPageSize int
}

// NewDatasetHandler creates a new dataset handler instance
func NewDatasetHandler(store storage.Store, manager DatasetManager, previewPageSize int) DatasetHandler {
	if previewPageSize <= 0 {
		previewPageSize = 50
	}
	return &DatasetHandlerImpl{
		store:           store,
		manager:         manager,
		previewPageSize: previewPageSize,
	}
}

// HandleCreateDataset ingests an uploaded CSV file and makes it the active
// dataset, replacing any previous one
func (h *DatasetHandlerImpl) HandleCreateDataset(c echo.Context) error {
	var req createDatasetRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}

	info, err := h.store.Get(req.FileID)
	if err != nil {
		return NewNotFoundError("file", req.FileID)
	}

	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return NewNotFoundError("file", req.FileID)
	}

	ds, err := h.manager.CreateDataset(info.ID, info.Name, path)
	if err != nil {
		return NewBadRequestError("failed to ingest CSV", err)
	}

	return c.JSON(http.StatusCreated, ds)
}

// HandleActiveDataset returns metadata for the active dataset
func (h *DatasetHandlerImpl) HandleActiveDataset(c echo.Context) error {
	ds, ok := h.manager.ActiveDataset()
	if !ok {
		return NewNotFoundError("dataset", "active")
	}
	return c.JSON(http.StatusOK, ds)
}

// HandleDatasetRecords returns one preview page of the active dataset as JSON
func (h *DatasetHandlerImpl) HandleDatasetRecords(c echo.Context) error {
	page, err := h.recordsPage(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// HandleDatasetRecordsMsgpack returns one preview page encoded as msgpack,
// which is much smaller than JSON for wide datasets
func (h *DatasetHandlerImpl) HandleDatasetRecordsMsgpack(c echo.Context) error {
	page, err := h.recordsPage(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(page)
	if err != nil {
		return NewInternalError("failed to encode records", err)
	}

	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

func (h *DatasetHandlerImpl) recordsPage(c echo.Context) (*recordsResponse, error) {
	page := 1
	if p := c.QueryParam("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}

	pageSize := h.previewPageSize
	if ps := c.QueryParam("pageSize"); ps != "" {
		if n, err := strconv.Atoi(ps); err == nil && n > 0 && n <= 1000 {
			pageSize = n
		}
	}

	records, total, err := h.manager.Records(c.Request().Context(), page, pageSize)
	if err != nil {
		return nil, toAPIError(err)
	}
	if records == nil {
		records = []models.Record{}
	}

	return &recordsResponse{
		Records:  records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Request/Response types

type createDatasetRequest struct {
	FileID string `json:"fileId"`
}

type recordsResponse struct {
	Records  []models.Record `json:"records" msgpack:"records"`
	Total    int             `json:"total" msgpack:"total"`
	Page     int             `json:"page" msgpack:"page"`
	PageSize int             `json:"pageSize" msgpack:"pageSize"`
}
