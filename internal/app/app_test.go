package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
)

const seed = `{
  "teachers": [{"id": "t-ana", "fullName": "Ana Souza", "status": "ACTIVE", "languages": ["INGLES"]}],
  "enrollments": [{"id": "e-joao", "studentName": "Joao Pereira", "studentUserId": "u-joao", "weeklyFrequency": 2, "lessonMinutes": 60,
    "lessonType": "PARTICULAR", "status": "ACTIVE", "course": "INGLES"}],
  "availability": [{"teacherId": "t-ana", "dayOfWeek": 1, "startMinutes": 480, "endMinutes": 720}],
  "holidays": [{"date": "2024-03-04", "name": "Carnaval"}]
}`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return &config.Config{
		Env:            config.EnvDevelopment,
		APIPrefix:      "/api/v1",
		StorageDriver:  config.StorageDriverMemory,
		MemorySeedFile: path,
		JWT:            config.JWTConfig{Secret: "test-secret"},
		Scheduling: config.SchedulingConfig{
			ReferenceTimezone:  loc.String(),
			Location:           loc,
			MaxRecurrenceWeeks: 52,
			FanoutLimit:        2,
			FrequencyMode:      config.FrequencyModeCount,
		},
	}
}

func bearer(t *testing.T, secret string, role models.UserRole) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{UserID: "u-1", Role: role, FullName: "Secretaria"}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestMemoryAppServesSeededData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := memoryConfig(t)
	application, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer application.Close()
	application.Start(context.Background())

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		recorder := httptest.NewRecorder()
		application.Router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, recorder.Code, path)
	}

	recorder := httptest.NewRecorder()
	application.Router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/teachers/t-ana/availability", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/teachers/t-ana/availability", nil)
	req.Header.Set("Authorization", bearer(t, "test-secret", models.RoleAdmin))
	recorder = httptest.NewRecorder()
	application.Router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"startMinutes":480`)

	body := `{"enrollmentId":"e-joao","teacherId":"t-ana","startAt":"2024-03-04T09:00:00-03:00","durationMinutes":60}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/lessons", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "test-secret", models.RoleAdmin))
	recorder = httptest.NewRecorder()
	application.Router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	assert.Contains(t, recorder.Body.String(), "Carnaval")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/lessons", nil)
	req.Header.Set("Authorization", bearer(t, "other-secret", models.RoleAdmin))
	recorder = httptest.NewRecorder()
	application.Router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestUnknownStorageDriver(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StorageDriver = "sqlite"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}
