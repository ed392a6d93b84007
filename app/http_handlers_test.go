package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ZakirShahzad/allergy-med-scan-guide/auth"

	"github.com/gin-gonic/gin"
)

func newTestRouter(claims *auth.Claims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if claims != nil {
		router.Use(func(c *gin.Context) {
			c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
			c.Next()
		})
	}
	router.GET("/health", Health)
	router.GET("/me", Me)
	router.GET("/history", GetAnalysisHistory)
	router.GET("/medications", ListMedications)
	router.POST("/medications", AddMedication)
	router.DELETE("/medications/:id", DeleteMedication)
	return router
}

func testClaims() *auth.Claims {
	return &auth.Claims{Subject: "user-1", Email: "user@example.com"}
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(t, newTestRouter(nil), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandlersRejectMissingClaims(t *testing.T) {
	router := newTestRouter(nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/me"},
		{http.MethodGet, "/history"},
		{http.MethodGet, "/medications"},
		{http.MethodPost, "/medications"},
		{http.MethodDelete, "/medications/1"},
	} {
		w := doRequest(t, router, tc.method, tc.path, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", tc.method, tc.path, w.Code)
		}
	}
}

func TestMeDefaultsWithoutDB(t *testing.T) {
	if db != nil {
		t.Skip("database initialized")
	}

	w := doRequest(t, newTestRouter(testClaims()), http.MethodGet, "/me", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Subscribed     bool   `json:"subscribed"`
		Tier           string `json:"subscription_tier"`
		MonthlyLimit   int    `json:"monthly_limit"`
		ScansRemaining int    `json:"scans_remaining"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Subscribed || resp.Tier != "Free" {
		t.Fatalf("unexpected defaults: %+v", resp)
	}
	if resp.MonthlyLimit != 5 || resp.ScansRemaining != 5 {
		t.Fatalf("unexpected limits: %+v", resp)
	}
}

func TestListMedicationsEmptyWithoutDB(t *testing.T) {
	if db != nil {
		t.Skip("database initialized")
	}

	w := doRequest(t, newTestRouter(testClaims()), http.MethodGet, "/medications", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"count":0`) {
		t.Fatalf("body = %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"medications":[]`) {
		t.Fatalf("medications must render as an empty array: %s", w.Body.String())
	}
}

func TestGetAnalysisHistoryEmptyWithoutDB(t *testing.T) {
	if db != nil {
		t.Skip("database initialized")
	}

	w := doRequest(t, newTestRouter(testClaims()), http.MethodGet, "/history?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"history":[]`) {
		t.Fatalf("history must render as an empty array: %s", w.Body.String())
	}
}

func TestAddMedicationRequiresName(t *testing.T) {
	w := doRequest(t, newTestRouter(testClaims()), http.MethodPost, "/medications", `{"dosage":"5mg"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "medication_name is required") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestDeleteMedicationInvalidID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-4"} {
		w := doRequest(t, newTestRouter(testClaims()), http.MethodDelete, "/medications/"+id, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: status = %d, want 400", id, w.Code)
		}
	}
}
