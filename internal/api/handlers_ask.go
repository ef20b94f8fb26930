// handlers_ask.go - Question/answer and guardrail handlers
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/csv-agent/backend/internal/agent"
	"github.com/csv-agent/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// AskHandlerImpl implements the AskHandler interface
type AskHandlerImpl struct {
	manager DatasetManager
}

// NewAskHandler creates a new ask handler instance
func NewAskHandler(manager DatasetManager) AskHandler {
	return &AskHandlerImpl{manager: manager}
}

// HandleAsk runs the full question cycle against the active dataset
func (h *AskHandlerImpl) HandleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return NewValidationError("question")
	}

	answer, err := h.manager.Ask(c.Request().Context(), question)
	if err != nil {
		return toAPIError(err)
	}

	return c.JSON(http.StatusOK, answer)
}

// RulesHandlerImpl implements the RulesHandler interface
type RulesHandlerImpl struct {
	manager DatasetManager
}

// NewRulesHandler creates a new rules handler instance
func NewRulesHandler(manager DatasetManager) RulesHandler {
	return &RulesHandlerImpl{manager: manager}
}

// HandleGetRules returns the active guardrail rules
func (h *RulesHandlerImpl) HandleGetRules(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Rules())
}

// HandleUpdateRules replaces the guardrail rules from a YAML body
func (h *RulesHandlerImpl) HandleUpdateRules(c echo.Context) error {
	rules, err := agent.ParseRulesFromReader(c.Request().Body)
	if err != nil {
		return NewBadRequestError("invalid rules YAML", err)
	}

	h.manager.SetRules(rules)
	return c.JSON(http.StatusOK, rules)
}

// Request/Response types

type askRequest struct {
	Question string `json:"question"`
}

// toAPIError maps domain errors from the question cycle onto API error codes
func toAPIError(err error) *APIError {
	var terr *agent.TranslationError
	var verr *agent.ValidationError
	var xerr *agent.ExecutionError

	switch {
	case errors.Is(err, session.ErrNoDataset):
		return NewConflictError("no active dataset; upload a CSV first")
	case errors.As(err, &terr):
		apiErr := NewTranslationError("model did not produce a valid query", terr.Err)
		apiErr.Details = terr.Raw
		return apiErr
	case errors.As(err, &verr):
		return NewQueryValidationError(verr.Reason)
	case errors.As(err, &xerr):
		return NewExecutionError("query failed against the dataset", xerr.Err)
	default:
		return NewInternalError("failed to answer question", err)
	}
}
