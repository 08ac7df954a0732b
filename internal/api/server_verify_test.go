package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sundaiclub/verifAI/internal/model"
	"github.com/sundaiclub/verifAI/internal/pkg/metrics"
)

func serveJSON(s *Server, method, path string, handler gin.HandlerFunc, body string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, path, handler)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerify_FoundMarksAttendance(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	store := &mockGuestStore{existsFunc: func(ctx context.Context, field, value, date string) (bool, error) {
		if field != "email" || value != "a@x.com" || date != "2024-01-01" {
			t.Fatalf("unexpected lookup args: %s %s %s", field, value, date)
		}
		return true, nil
	}}
	s := newTestServer(store, &mockDeduper{})

	body := `{"field":"email","value":"a@x.com","date":"2024-01-01"}`
	w := serveJSON(s, http.MethodPost, "/verify/", s.handleVerify, body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp verifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Exists {
		t.Fatalf("expected exists=true, got %+v", resp)
	}
	if store.updateCalls != 1 {
		t.Fatalf("expected one attendance update, got %d", store.updateCalls)
	}
	if store.lastUpdateArgs != [4]string{"email", "a@x.com", "2024-01-01", "True"} {
		t.Fatalf("unexpected update args: %v", store.lastUpdateArgs)
	}
}

func TestVerify_NotFoundSkipsUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	store := &mockGuestStore{}
	s := newTestServer(store, &mockDeduper{})

	body := `{"field":"name","value":"Nobody","date":"2024-01-01"}`
	w := serveJSON(s, http.MethodPost, "/verify/", s.handleVerify, body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp verifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Exists {
		t.Fatalf("expected exists=false, got %+v", resp)
	}
	if store.updateCalls != 0 {
		t.Fatalf("expected no update for missing guest, got %d", store.updateCalls)
	}
}

func TestVerify_RejectsUnknownField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	store := &mockGuestStore{}
	s := newTestServer(store, &mockDeduper{})

	body := `{"field":"status","value":"Going","date":"2024-01-01"}`
	w := serveJSON(s, http.MethodPost, "/verify/", s.handleVerify, body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if store.existsCalls != 0 {
		t.Fatalf("expected no lookup for rejected field")
	}
}

func TestVerify_SecondMarkIsNoop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	// MySQL reports zero affected rows when the stored value is unchanged.
	store := &mockGuestStore{
		existsFunc: func(ctx context.Context, field, value, date string) (bool, error) { return true, nil },
		updateFunc: func(ctx context.Context, field, value, date, attendance string) (int64, error) { return 0, nil },
	}
	s := newTestServer(store, &mockDeduper{})

	body := `{"field":"email","value":"a@x.com","date":"2024-01-01"}`
	w := serveJSON(s, http.MethodPost, "/verify/", s.handleVerify, body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp verifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Exists {
		t.Fatalf("expected exists=true on re-verify, got %+v", resp)
	}
}

func TestUpdateAttendance_NoMatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	store := &mockGuestStore{updateFunc: func(ctx context.Context, field, value, date, attendance string) (int64, error) {
		return 0, nil
	}}
	s := newTestServer(store, &mockDeduper{})

	body := `{"email":"nobody@x.com","date":"2024-01-01","attendance":"True"}`
	w := serveJSON(s, http.MethodPost, "/update-attendance/", s.handleUpdateAttendance, body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp attendanceUpdateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.RowsUpdated != 0 {
		t.Fatalf("expected success=false with zero rows, got %+v", resp)
	}
}

func TestUpdateAttendance_UpdatesAllMatchingRows(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	store := &mockGuestStore{updateFunc: func(ctx context.Context, field, value, date, attendance string) (int64, error) {
		return 2, nil
	}}
	s := newTestServer(store, &mockDeduper{})

	body := `{"email":"dup@x.com","date":"2024-01-01","attendance":""}`
	w := serveJSON(s, http.MethodPost, "/update-attendance/", s.handleUpdateAttendance, body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp attendanceUpdateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.RowsUpdated != 2 {
		t.Fatalf("expected success=true with two rows, got %+v", resp)
	}
	if store.lastUpdateArgs[0] != "email" {
		t.Fatalf("expected update keyed by email, got %q", store.lastUpdateArgs[0])
	}
	if store.lastUpdateArgs[3] != "" {
		t.Fatalf("expected cleared attendance to pass through, got %q", store.lastUpdateArgs[3])
	}
}

func TestEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	store := &mockGuestStore{eventsFunc: func(ctx context.Context) ([]model.EventStat, error) {
		return []model.EventStat{
			{Date: "2024-01-02", TotalGuests: 5, CheckedIn: 3},
			{Date: "2024-01-01", TotalGuests: 2, CheckedIn: 2},
		}, nil
	}}
	s := newTestServer(store, &mockDeduper{})

	w := serveJSON(s, http.MethodGet, "/events/", s.handleEvents, "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats []model.EventStat
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(stats) != 2 || stats[0].Date != "2024-01-02" || stats[0].CheckedIn != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAttendanceStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	store := &mockGuestStore{statsFunc: func(ctx context.Context, date string) (model.EventStat, error) {
		if date != "2024-01-01" {
			t.Fatalf("unexpected date: %q", date)
		}
		return model.EventStat{Date: date, TotalGuests: 4, CheckedIn: 1}, nil
	}}
	s := newTestServer(store, &mockDeduper{})

	r := gin.New()
	r.GET("/attendance/:date", s.handleAttendanceStats)
	req := httptest.NewRequest(http.MethodGet, "/attendance/2024-01-01", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stat model.EventStat
	if err := json.Unmarshal(w.Body.Bytes(), &stat); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stat.TotalGuests != 4 || stat.CheckedIn != 1 {
		t.Fatalf("unexpected stat: %+v", stat)
	}
}

func TestColumns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	store := &mockGuestStore{}
	s := newTestServer(store, &mockDeduper{})

	w := serveJSON(s, http.MethodGet, "/columns/", s.handleColumns, "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"attendance"`)) {
		t.Fatalf("expected column list, got %s", w.Body.String())
	}
}
