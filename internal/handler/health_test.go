package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthWithoutModel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := newTestHandler(&modelServerStub{})
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Status != "unhealthy" || body.ModelLoaded {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestHealthWithModel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := newTestHandler(&modelServerStub{loaded: true, version: 4})
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	var body HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Status != "healthy" || !body.ModelLoaded || body.ModelVersion != 4 {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}
