// handlers_ask_test.go - Tests for the ask and rules handlers
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/csv-agent/backend/internal/models"
	"github.com/csv-agent/backend/internal/session"
	"github.com/csv-agent/backend/internal/testutil"
	"github.com/labstack/echo/v4"
)

func askRequestContext(e *echo.Echo, question string) (echo.Context, *httptest.ResponseRecorder) {
	body, _ := json.Marshal(askRequest{Question: question})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func loadTestDataset(t *testing.T, mgr *session.Manager, store *testutil.MockStorageWithTempDir, fileID string) {
	t.Helper()
	path, err := store.GetFilePath(fileID)
	if err != nil {
		t.Fatalf("file path: %v", err)
	}
	if _, err := mgr.CreateDataset(fileID, "users.csv", path); err != nil {
		t.Fatalf("create dataset: %v", err)
	}
}

func TestAskHandler_HandleAsk(t *testing.T) {
	e := echo.New()

	t.Run("count question", func(t *testing.T) {
		llm := testutil.NewMockLLM("THINKING: count users from Nepal, matching case-insensitively\n" +
			`QUERY: {"filter": {"Country": {"$regex": "Nepal", "$options": "i"}}, "operation": "count"}`)
		mgr, store, fileID := newTestSetup(t, llm)
		loadTestDataset(t, mgr, store, fileID)
		handler := NewAskHandler(mgr)

		c, rec := askRequestContext(e, "how many total users are from Nepal")
		if err := handler.HandleAsk(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var answer models.Answer
		if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if answer.Result == nil || answer.Result.Count != 2 {
			t.Errorf("expected count 2, got %+v", answer.Result)
		}
		if answer.Thinking == "" {
			t.Error("expected a thinking trace")
		}
		if answer.Query == nil || answer.Query.Operation != models.OpCount {
			t.Errorf("expected count operation, got %+v", answer.Query)
		}
	})

	t.Run("no dataset conflicts", func(t *testing.T) {
		mgr, _, _ := newTestSetup(t, nil)
		handler := NewAskHandler(mgr)

		c, _ := askRequestContext(e, "how many rows")
		err := handler.HandleAsk(c)
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Status != http.StatusConflict {
			t.Errorf("expected status 409, got %d", apiErr.Status)
		}
		if apiErr.Code != "CONFLICT" {
			t.Errorf("expected error code CONFLICT, got %s", apiErr.Code)
		}
	})

	t.Run("empty question", func(t *testing.T) {
		mgr, store, fileID := newTestSetup(t, nil)
		loadTestDataset(t, mgr, store, fileID)
		handler := NewAskHandler(mgr)

		c, _ := askRequestContext(e, "   ")
		err := handler.HandleAsk(c)
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Code != "VALIDATION_ERROR" {
			t.Errorf("expected error code VALIDATION_ERROR, got %s", apiErr.Code)
		}
	})

	t.Run("non-JSON model output", func(t *testing.T) {
		llm := testutil.NewMockLLM("I am sorry, I cannot help with that.")
		mgr, store, fileID := newTestSetup(t, llm)
		loadTestDataset(t, mgr, store, fileID)
		handler := NewAskHandler(mgr)

		c, _ := askRequestContext(e, "anything")
		err := handler.HandleAsk(c)
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Status != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", apiErr.Status)
		}
		if apiErr.Code != "TRANSLATION_ERROR" {
			t.Errorf("expected error code TRANSLATION_ERROR, got %s", apiErr.Code)
		}
		if !strings.Contains(apiErr.Details, "sorry") {
			t.Errorf("expected raw model output in details, got %s", apiErr.Details)
		}
	})

	t.Run("unknown field fails validation", func(t *testing.T) {
		llm := testutil.NewMockLLM(`QUERY: {"filter": {"Continent": "Asia"}, "operation": "count"}`)
		mgr, store, fileID := newTestSetup(t, llm)
		loadTestDataset(t, mgr, store, fileID)
		handler := NewAskHandler(mgr)

		c, _ := askRequestContext(e, "users in Asia")
		err := handler.HandleAsk(c)
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Status != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", apiErr.Status)
		}
		if apiErr.Code != "QUERY_VALIDATION_ERROR" {
			t.Errorf("expected error code QUERY_VALIDATION_ERROR, got %s", apiErr.Code)
		}
	})

	t.Run("model transport failure is internal", func(t *testing.T) {
		llm := testutil.NewFailingLLM("connection refused")
		mgr, store, fileID := newTestSetup(t, llm)
		loadTestDataset(t, mgr, store, fileID)
		handler := NewAskHandler(mgr)

		c, _ := askRequestContext(e, "anything")
		err := handler.HandleAsk(c)
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Status != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", apiErr.Status)
		}
	})

	t.Run("average via pipeline", func(t *testing.T) {
		llm := testutil.NewMockLLM("THINKING: average age over all users\n" +
			`QUERY: {"filter": {}, "pipeline": [{"$group": {"_id": null, "averageAge": {"$avg": "$Age"}}}]}`)
		mgr, store, fileID := newTestSetup(t, llm)
		loadTestDataset(t, mgr, store, fileID)
		handler := NewAskHandler(mgr)

		c, rec := askRequestContext(e, "what is the average age")
		if err := handler.HandleAsk(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var answer models.Answer
		if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if answer.Result == nil || answer.Result.Value == nil {
			t.Fatalf("expected aggregate value, got %+v", answer.Result)
		}
		if *answer.Result.Value != 30.0 {
			t.Errorf("expected average 30.0, got %v", *answer.Result.Value)
		}
	})
}

func TestRulesHandler(t *testing.T) {
	e := echo.New()

	t.Run("get defaults", func(t *testing.T) {
		mgr, _, _ := newTestSetup(t, nil)
		handler := NewRulesHandler(mgr)

		req := httptest.NewRequest(http.MethodGet, "/api/agent/rules", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler.HandleGetRules(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var rules models.AgentRules
		if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if len(rules.AllowedOperations) != 6 {
			t.Errorf("expected 6 allowed operations, got %d", len(rules.AllowedOperations))
		}
	})

	t.Run("update from YAML", func(t *testing.T) {
		mgr, _, _ := newTestSetup(t, nil)
		handler := NewRulesHandler(mgr)

		yaml := "allowed_operations:\n  - count\nfind_limit: 10\n"
		req := httptest.NewRequest(http.MethodPost, "/api/agent/rules", strings.NewReader(yaml))
		req.Header.Set("Content-Type", "application/x-yaml")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler.HandleUpdateRules(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := mgr.Rules()
		if len(got.AllowedOperations) != 1 || got.AllowedOperations[0] != models.OpCount {
			t.Errorf("expected only count allowed, got %v", got.AllowedOperations)
		}
		if got.FindLimit != 10 {
			t.Errorf("expected find limit 10, got %d", got.FindLimit)
		}
	})

	t.Run("invalid YAML rejected", func(t *testing.T) {
		mgr, _, _ := newTestSetup(t, nil)
		handler := NewRulesHandler(mgr)

		req := httptest.NewRequest(http.MethodPost, "/api/agent/rules", strings.NewReader("allowed_operations: ["))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.HandleUpdateRules(c)
		apiErr, ok := err.(*APIError)
		if !ok {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.Code != "BAD_REQUEST" {
			t.Errorf("expected error code BAD_REQUEST, got %s", apiErr.Code)
		}
	})

	t.Run("disallowed operation rejected", func(t *testing.T) {
		mgr, _, _ := newTestSetup(t, nil)
		handler := NewRulesHandler(mgr)

		req := httptest.NewRequest(http.MethodPost, "/api/agent/rules", strings.NewReader("allowed_operations:\n  - drop_table\n"))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler.HandleUpdateRules(c); err == nil {
			t.Error("expected error, got nil")
		}
	})
}
