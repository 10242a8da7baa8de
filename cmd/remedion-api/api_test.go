package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medwise/remedion/pkg/channels/gochannel"
	"github.com/medwise/remedion/pkg/cmd"
	"github.com/medwise/remedion/pkg/eventbus"
	"github.com/medwise/remedion/pkg/lock"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence/file"
)

func setupTestAPI(t *testing.T) (*fiber.App, *cmd.Engine) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	publisher, subscriber, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(publisher, subscriber)
	t.Cleanup(func() { _ = bus.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := cmd.NewEngine(store, bus, lock.NewMemoryLocker(), logger)
	t.Cleanup(engine.Close)

	api := NewAPI(logger, engine)

	return api.App(), engine
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Remedion API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestAPI_HealthEndpoint(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}

	err = json.NewDecoder(resp.Body).Decode(&health)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestAPI_CORS_Headers(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/instances", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAPI_ValidateTransitionThroughApp(t *testing.T) {
	app, engine := setupTestAPI(t)

	instance := &models.WorkflowInstance{
		ID:           "wf-api-1",
		ContentID:    "content-wf-api-1",
		ContentType:  models.ContentTypePost,
		CurrentState: models.StateDraft,
		Owner:        "author-1",
	}
	require.NoError(t, engine.Store.InstanceRepository().Save(t.Context(), instance))

	payload, err := json.Marshal(map[string]any{
		"instance_id": "wf-api-1",
		"action":      "SUBMIT_FOR_REVIEW",
		"user_id":     "author-1",
		"user_role":   "AUTHOR",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/transitions/validate", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.ValidationResult

	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
