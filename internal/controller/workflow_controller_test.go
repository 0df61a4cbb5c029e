package controller

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"servicelines-be/internal/pkg/logger"
	"servicelines-be/internal/pkg/serverutils"
	"servicelines-be/internal/repository/memory"
	"servicelines-be/internal/service"
	"servicelines-be/pkg/pipeline/mock"
	"servicelines-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testApp struct {
	app      *fiber.App
	workflow service.IWorkflowService
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	log := logger.NewNopLogger()
	sessions := service.NewSessionService("test-secret", time.Hour)
	workflow := service.NewWorkflowService(
		mock.NewClient(0),
		store.NewSession(memory.NewKVRepository(time.Hour), log),
		nil, nil, log,
		service.WorkflowServiceConfig{WorkspaceTTL: time.Hour},
	)
	t.Cleanup(workflow.Shutdown)

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	api := app.Group("/api")
	NewWorkflowController(workflow, sessions).RegisterRoutes(api)
	NewThreadController(workflow, sessions).RegisterRoutes(api)
	return testApp{app: app, workflow: workflow}
}

func (a testApp) do(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func (a testApp) session(t *testing.T) string {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/workflow/v1/session", "", "")
	require.Equal(t, http.StatusCreated, status)
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func TestWorkflowRequiresSession(t *testing.T) {
	a := newTestApp(t)

	status, env := a.do(t, http.MethodGet, "/api/workflow/v1/state", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)

	status, _ = a.do(t, http.MethodGet, "/api/workflow/v1/threads", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestWorkflowHTTPFlow(t *testing.T) {
	a := newTestApp(t)
	token := a.session(t)

	status, env := a.do(t, http.MethodPost, "/api/workflow/v1/submit", token, `{"query":"repair pumps"}`)
	require.Equal(t, http.StatusAccepted, status, env.Message)
	a.workflow.Shutdown()

	status, env = a.do(t, http.MethodGet, "/api/workflow/v1/state", token, "")
	require.Equal(t, http.StatusOK, status)
	var state struct {
		ThreadID string `json:"thread_id"`
		State    struct {
			Complete bool `json:"complete"`
			Run      struct {
				ServiceClasses []json.RawMessage `json:"serviceClasses"`
			} `json:"run"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.True(t, state.State.Complete)
	assert.Len(t, state.State.Run.ServiceClasses, 3)

	status, _ = a.do(t, http.MethodPut, "/api/workflow/v1/selection/0", token, `{"selected":true}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, http.MethodPut, "/api/workflow/v1/selection/0/choice", token, `{"choice":"new"}`)
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(t, http.MethodGet, "/api/workflow/v1/review", token, "")
	require.Equal(t, http.StatusOK, status)
	var review struct {
		Items []struct {
			Index  int    `json:"index"`
			Choice string `json:"choice"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &review))
	require.Len(t, review.Items, 1)
	assert.Equal(t, "new", review.Items[0].Choice)

	status, _ = a.do(t, http.MethodPost, "/api/workflow/v1/regenerate", token, `{"indices":[0],"instruction":"make it shorter"}`)
	require.Equal(t, http.StatusAccepted, status)
	a.workflow.Shutdown()

	status, env = a.do(t, http.MethodGet, "/api/workflow/v1/versions", token, "")
	require.Equal(t, http.StatusOK, status)
	var versions struct {
		Versions     []struct{ Query string } `json:"versions"`
		CurrentIndex int                      `json:"current_index"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &versions))
	require.Len(t, versions.Versions, 2)
	assert.Equal(t, 1, versions.CurrentIndex)
	assert.Equal(t, "repair pumps [Enhanced with: make it shorter]", versions.Versions[1].Query)

	status, _ = a.do(t, http.MethodPut, "/api/workflow/v1/versions/0", token, "")
	require.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, http.MethodPut, "/api/workflow/v1/versions/9", token, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWorkflowValidationErrors(t *testing.T) {
	a := newTestApp(t)
	token := a.session(t)

	status, env := a.do(t, http.MethodPost, "/api/workflow/v1/submit", token, `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)

	status, _ = a.do(t, http.MethodPost, "/api/workflow/v1/regenerate", token, `{"indices":[],"instruction":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPost, "/api/workflow/v1/regenerate", token, `{"indices":[0],"instruction":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPut, "/api/workflow/v1/selection/abc", token, `{"selected":true}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPut, "/api/workflow/v1/selection/0/choice", token, `{"choice":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestThreadRoutes(t *testing.T) {
	a := newTestApp(t)
	token := a.session(t)

	type threadList struct {
		Threads []struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		} `json:"threads"`
		CurrentID string `json:"current_id"`
	}

	status, env := a.do(t, http.MethodGet, "/api/workflow/v1/threads", token, "")
	require.Equal(t, http.StatusOK, status)
	var initial threadList
	require.NoError(t, json.Unmarshal(env.Data, &initial))
	require.Len(t, initial.Threads, 1)
	assert.True(t, initial.Threads[0].Current)

	status, _ = a.do(t, http.MethodDelete, "/api/workflow/v1/threads/"+initial.CurrentID, token, "")
	assert.Equal(t, http.StatusConflict, status)

	status, env = a.do(t, http.MethodPost, "/api/workflow/v1/threads", token, "")
	require.Equal(t, http.StatusCreated, status)
	var created threadList
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created.Threads, 2)
	assert.NotEqual(t, initial.CurrentID, created.CurrentID)

	status, env = a.do(t, http.MethodPut, "/api/workflow/v1/threads/"+initial.CurrentID+"/select", token, "")
	require.Equal(t, http.StatusOK, status)
	var selected threadList
	require.NoError(t, json.Unmarshal(env.Data, &selected))
	assert.Equal(t, initial.CurrentID, selected.CurrentID)

	status, _ = a.do(t, http.MethodPut, "/api/workflow/v1/threads/missing/select", token, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, env = a.do(t, http.MethodDelete, "/api/workflow/v1/threads/"+created.CurrentID, token, "")
	require.Equal(t, http.StatusOK, status)
	var remaining threadList
	require.NoError(t, json.Unmarshal(env.Data, &remaining))
	assert.Len(t, remaining.Threads, 1)
}
