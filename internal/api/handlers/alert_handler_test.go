package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"spotalert/internal/models"
)

// ============ AlertHandler Tests ============

func validAlertBody() *bytes.Buffer {
	return bytes.NewBufferString(`{
		"type": "range",
		"exchange": "binance",
		"pair": "ETH/USD",
		"user_id": 10,
		"server_id": 555,
		"from_price": "100",
		"to_price": "200",
		"repeat": 1
	}`)
}

func TestAlertHandler_CreateAlert(t *testing.T) {
	t.Run("successfully creates alert", func(t *testing.T) {
		mockSvc := NewMockAlertService()
		handler := NewAlertHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", validAlertBody())
		w := httptest.NewRecorder()

		handler.CreateAlert(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
		}

		var created models.Alert
		if err := handlerJSON.NewDecoder(w.Body).Decode(&created); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if created.ID == 0 {
			t.Error("expected assigned id in response")
		}
		if !created.FromPrice.Equal(decimal.NewFromInt(100)) {
			t.Errorf("expected from_price 100, got %s", created.FromPrice)
		}
	})

	t.Run("returns 400 on invalid body", func(t *testing.T) {
		handler := NewAlertHandler(NewMockAlertService())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", bytes.NewBufferString("{broken"))
		w := httptest.NewRecorder()

		handler.CreateAlert(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 400 on validation error", func(t *testing.T) {
		handler := NewAlertHandler(NewMockAlertService())

		body := bytes.NewBufferString(`{"type": "range", "user_id": 10}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", body)
		w := httptest.NewRecorder()

		handler.CreateAlert(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mockSvc := NewMockAlertService()
		mockSvc.err = ErrMockDatabase
		handler := NewAlertHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", validAlertBody())
		w := httptest.NewRecorder()

		handler.CreateAlert(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestAlertHandler_GetAlert(t *testing.T) {
	t.Run("returns existing alert", func(t *testing.T) {
		mockSvc := NewMockAlertService()
		mockSvc.alerts[7] = &models.Alert{ID: 7, Type: models.AlertTypeRange, Pair: "ETH/USD"}
		handler := NewAlertHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/7", nil)
		w := httptest.NewRecorder()

		handler.GetAlert(w, withVars(req, map[string]string{"id": "7"}))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var got models.Alert
		if err := handlerJSON.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.ID != 7 || got.Pair != "ETH/USD" {
			t.Errorf("unexpected alert %+v", got)
		}
	})

	t.Run("returns 404 for missing alert", func(t *testing.T) {
		handler := NewAlertHandler(NewMockAlertService())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/99", nil)
		w := httptest.NewRecorder()

		handler.GetAlert(w, withVars(req, map[string]string{"id": "99"}))

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("returns 400 on malformed id", func(t *testing.T) {
		handler := NewAlertHandler(NewMockAlertService())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/abc", nil)
		w := httptest.NewRecorder()

		handler.GetAlert(w, withVars(req, map[string]string{"id": "abc"}))

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestAlertHandler_UpdateAlert(t *testing.T) {
	t.Run("updates message and repeat", func(t *testing.T) {
		mockSvc := NewMockAlertService()
		mockSvc.alerts[7] = &models.Alert{ID: 7, Type: models.AlertTypeRange, Repeat: 5}
		handler := NewAlertHandler(mockSvc)

		body := bytes.NewBufferString(`{"message": "updated", "repeat": 3}`)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/alerts/7", body)
		w := httptest.NewRecorder()

		handler.UpdateAlert(w, withVars(req, map[string]string{"id": "7"}))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		if mockSvc.alerts[7].Message != "updated" {
			t.Errorf("expected updated message, got %q", mockSvc.alerts[7].Message)
		}
		if mockSvc.alerts[7].Repeat != 3 {
			t.Errorf("expected repeat 3, got %d", mockSvc.alerts[7].Repeat)
		}
	})

	t.Run("returns 400 on empty update", func(t *testing.T) {
		handler := NewAlertHandler(NewMockAlertService())

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/alerts/7", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		handler.UpdateAlert(w, withVars(req, map[string]string{"id": "7"}))

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 400 on negative repeat", func(t *testing.T) {
		mockSvc := NewMockAlertService()
		mockSvc.alerts[7] = &models.Alert{ID: 7, Type: models.AlertTypeRange}
		handler := NewAlertHandler(mockSvc)

		body := bytes.NewBufferString(`{"repeat": -2}`)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/alerts/7", body)
		w := httptest.NewRecorder()

		handler.UpdateAlert(w, withVars(req, map[string]string{"id": "7"}))

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestAlertHandler_BulkOperations(t *testing.T) {
	t.Run("delete returns affected count", func(t *testing.T) {
		mockSvc := NewMockAlertService()
		mockSvc.deleted = 3
		handler := NewAlertHandler(mockSvc)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/alerts?server_id=555", nil)
		w := httptest.NewRecorder()

		handler.DeleteAlerts(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var resp BulkAlertsResponse
		if err := handlerJSON.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Affected != 3 {
			t.Errorf("expected affected 3, got %d", resp.Affected)
		}
	})

	t.Run("delete with empty filter returns 400", func(t *testing.T) {
		handler := NewAlertHandler(NewMockAlertService())

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/alerts", nil)
		w := httptest.NewRecorder()

		handler.DeleteAlerts(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("migrate returns affected count", func(t *testing.T) {
		mockSvc := NewMockAlertService()
		mockSvc.migrated = 2
		handler := NewAlertHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/migrate?server_id=555", nil)
		w := httptest.NewRecorder()

		handler.MigrateAlerts(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var resp BulkAlertsResponse
		if err := handlerJSON.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Affected != 2 {
			t.Errorf("expected affected 2, got %d", resp.Affected)
		}
	})
}

func TestAlertHandler_ListAlerts(t *testing.T) {
	t.Run("returns alerts with total", func(t *testing.T) {
		mockSvc := NewMockAlertService()
		mockSvc.alerts[1] = &models.Alert{ID: 1, Type: models.AlertTypeRange}
		mockSvc.alerts[2] = &models.Alert{ID: 2, Type: models.AlertTypeTrend}
		handler := NewAlertHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?user_id=10", nil)
		w := httptest.NewRecorder()

		handler.ListAlerts(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var resp ListAlertsResponse
		if err := handlerJSON.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Total != 2 || len(resp.Alerts) != 2 {
			t.Errorf("expected 2 alerts, got total=%d len=%d", resp.Total, len(resp.Alerts))
		}
	})

	t.Run("returns empty array when no alerts", func(t *testing.T) {
		handler := NewAlertHandler(NewMockAlertService())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
		w := httptest.NewRecorder()

		handler.ListAlerts(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if body := w.Body.String(); !bytes.Contains([]byte(body), []byte(`"alerts":[]`)) {
			t.Errorf("expected empty alerts array, got %s", body)
		}
	})
}
