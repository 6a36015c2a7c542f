package http_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_http "github.com/stateflow/stateflow/internal/http"
	"github.com/stateflow/stateflow/internal/log"
	"github.com/stateflow/stateflow/pkg/models"
	"github.com/stateflow/stateflow/pkg/service"
	"github.com/stateflow/stateflow/pkg/storage"
)

func editorialType() models.WorkflowType {
	return models.WorkflowType{
		ID: "editorial",
		States: []models.State{
			{ID: "draft", Label: "Draft", Weight: 0, CreationState: true, Active: true},
			{ID: "review", Label: "In review", Weight: 1, Active: true},
			{ID: "published", Label: "Published", Weight: 2, Active: true},
		},
		Transitions: []models.ConfigTransition{
			{From: "draft", To: "review", Capabilities: []string{"submit"}},
			{From: "review", To: "published", Capabilities: []string{"publish"}},
		},
		Settings: models.Settings{ScheduleEnabled: true},
	}
}

func newServer(t *testing.T) (*httptest.Server, *service.WorkflowService) {
	caps := service.CapabilityMap{
		"editor":    {"submit"},
		"publisher": {"submit", "publish"},
	}
	svc := service.NewWorkflowService(storage.NewMockStore(), caps, []models.WorkflowType{editorialType()}, log.GetLogger())
	svc.RegisterAdapter("article", service.NewMemoryAdapter(true))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", internal_http.HealthHandler)
	mux.HandleFunc("/transitions", internal_http.TransitionsHandler(svc))
	mux.HandleFunc("/history", internal_http.HistoryHandler(svc))
	mux.HandleFunc("/run-due", internal_http.RunDueHandler(svc))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, svc
}

func postForm(t *testing.T, srv *httptest.Server, path string, form url.Values) (int, string) {
	resp, err := srv.Client().PostForm(srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "stateflow server is running", string(body))
}

func TestExecuteTransitionEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	status, body := postForm(t, srv, "/transitions", url.Values{
		"workflow":    {"editorial"},
		"entity_type": {"article"},
		"entity_id":   {"a1"},
		"to":          {"review"},
		"actor":       {"editor"},
		"comment":     {"ready"},
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "now in state 'review'")

	// A denied transition reports the unchanged state, not an error.
	status, body = postForm(t, srv, "/transitions", url.Values{
		"workflow":    {"editorial"},
		"entity_type": {"article"},
		"entity_id":   {"a1"},
		"to":          {"published"},
		"actor":       {"editor"},
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "now in state 'review'")
}

func TestExecuteTransitionMissingParams(t *testing.T) {
	srv, _ := newServer(t)

	status, _ := postForm(t, srv, "/transitions", url.Values{
		"workflow": {"editorial"},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := srv.Client().Get(srv.URL + "/transitions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestScheduleAndRunDueEndpoints(t *testing.T) {
	srv, svc := newServer(t)

	due := int64(2000)
	status, body := postForm(t, srv, "/transitions", url.Values{
		"workflow":    {"editorial"},
		"entity_type": {"article"},
		"entity_id":   {"a2"},
		"to":          {"review"},
		"actor":       {"editor"},
		"scheduled":   {"true"},
		"due":         {strconv.FormatInt(due, 10)},
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "current state remains 'draft'")

	pending, err := svc.ScheduledFor("article", "a2", "")
	require.NoError(t, err)
	assert.Equal(t, due, pending.Timestamp)

	status, body = postForm(t, srv, "/run-due", url.Values{"start": {"1000"}})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Processed due transitions")

	state, err := svc.CurrentState("editorial", "article", "a2", "")
	require.NoError(t, err)
	assert.Equal(t, "review", state)
}

func TestHistoryEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	status, body := postForm(t, srv, "/transitions", url.Values{
		"workflow":    {"editorial"},
		"entity_type": {"article"},
		"entity_id":   {"a3"},
		"to":          {"review"},
		"actor":       {"editor"},
	})
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "review")

	resp, err := srv.Client().Get(srv.URL + "/history?entity_type=article&entity_id=a3")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "draft -> review")

	resp, err = srv.Client().Get(srv.URL + "/history?entity_type=article&entity_id=unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "No transitions found")
}
