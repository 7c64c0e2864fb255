package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dago-editor/internal/application/playback"
	"github.com/aescanero/dago-editor/internal/application/session"
	"github.com/aescanero/dago-editor/pkg/adapters/storage/memory"
	"github.com/aescanero/dago-editor/pkg/domain"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.ExecuteResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.ExecuteResponse)
	return resp, args.Error(1)
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	backend *mockBackend
	repo    *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := &mockBackend{}
	repo := memory.NewStore()
	manager := session.NewManager(backend, nil,
		session.WithDrafts(repo, 0),
		session.WithPacer(playback.Immediate))
	t.Cleanup(manager.Close)

	srv := NewServer(&Config{
		Port:      0,
		Sessions:  manager,
		Workflows: repo,
		Gatherer:  prometheus.NewRegistry(),
	})
	return &testServer{t: t, handler: srv.Handler(), backend: backend, repo: repo}
}

func (ts *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(ts.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (ts *testServer) createSession() string {
	ts.t.Helper()
	w, body := ts.do(http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(ts.t, http.StatusCreated, w.Code)
	return body["id"].(string)
}

func (ts *testServer) addNode(sid, typ string, params map[string]any) string {
	ts.t.Helper()
	w, body := ts.do(http.MethodPost, "/api/v1/sessions/"+sid+"/nodes", map[string]any{"type": typ, "params": params})
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	return body["id"].(string)
}

func (ts *testServer) connect(sid, source, target string) {
	ts.t.Helper()
	w, _ := ts.do(http.MethodPost, "/api/v1/sessions/"+sid+"/edges", map[string]any{"source": source, "target": target})
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, _ = ts.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNodeTypes(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(http.MethodGet, "/api/v1/node-types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["data"])
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession()

	w, body := ts.do(http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, body = ts.do(http.MethodGet, "/api/v1/sessions/"+sid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sid, body["id"])

	w, _ = ts.do(http.MethodDelete, "/api/v1/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body = ts.do(http.MethodGet, "/api/v1/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", errorCode(body))
}

func TestGraphEditing(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession()
	base := "/api/v1/sessions/" + sid

	in := ts.addNode(sid, "input", nil)
	out := ts.addNode(sid, "output", nil)
	assert.Equal(t, "input_0", in)
	assert.Equal(t, "output_0", out)
	ts.connect(sid, in, out)

	w, body := ts.do(http.MethodPost, base+"/nodes", map[string]any{"type": "teleporter"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_NODE_TYPE", errorCode(body))

	w, body = ts.do(http.MethodPost, base+"/edges", map[string]any{"source": in, "target": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NODE_NOT_FOUND", errorCode(body))

	w, body = ts.do(http.MethodPatch, base+"/nodes/"+in, map[string]any{"position": map[string]any{"x": 10, "y": 20}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"x": float64(10), "y": float64(20)}, body["position"])

	w, body = ts.do(http.MethodGet, base+"/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["nodes"], 2)
	assert.Len(t, body["edges"], 1)

	w, _ = ts.do(http.MethodDelete, base+"/nodes/"+in, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, body = ts.do(http.MethodGet, base+"/graph", nil)
	assert.Len(t, body["nodes"], 1)
	assert.Empty(t, body["edges"])

	w, _ = ts.do(http.MethodDelete, base+"/nodes/"+in, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(http.MethodDelete, base+"/graph", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, body = ts.do(http.MethodGet, base+"/graph", nil)
	assert.Empty(t, body["nodes"])
}

func TestFieldAutocomplete(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession()
	base := "/api/v1/sessions/" + sid

	in := ts.addNode(sid, "input", nil)
	ai := ts.addNode(sid, "openai", nil)
	ts.connect(sid, in, ai)

	w, body := ts.do(http.MethodPost, base+"/fields/"+ai+"/prompt/input", map[string]any{"value": "Hi {{inp"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["open"])

	w, body = ts.do(http.MethodPost, base+"/fields/"+ai+"/prompt/keydown", map[string]any{"key": "Enter"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["consumed"])
	state := body["state"].(map[string]any)
	assert.Equal(t, "Hi {{ input_0.output}", state["value"])

	_, body = ts.do(http.MethodGet, base+"/graph", nil)
	nodes := body["nodes"].([]any)
	params := nodes[1].(map[string]any)["data"].(map[string]any)["params"].(map[string]any)
	assert.Equal(t, "Hi {{ input_0.output}", params["prompt"])

	w, body = ts.do(http.MethodPost, base+"/fields/"+ai+"/prompt/keydown", map[string]any{"key": "ArrowDown"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["consumed"])

	w, body = ts.do(http.MethodPost, base+"/suggestions", map[string]any{"text": "{{input", "node_id": ai})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["active"])
	assert.Len(t, body["suggestions"], 1)

	w, _ = ts.do(http.MethodPost, base+"/fields/ghost/prompt/input", map[string]any{"value": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckNode(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession()
	base := "/api/v1/sessions/" + sid

	in := ts.addNode(sid, "input", nil)
	ai := ts.addNode(sid, "openai", map[string]any{"prompt": "{{" + in + ".output}}"})

	w, body := ts.do(http.MethodGet, base+"/nodes/"+ai+"/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["valid"])
	errs := body["errors"].(map[string]any)
	assert.Equal(t, "Node not connected", errs["prompt"].(map[string]any)["error"])

	ts.connect(sid, in, ai)
	_, body = ts.do(http.MethodGet, base+"/nodes/"+ai+"/check", nil)
	assert.Equal(t, true, body["valid"])

	w, body = ts.do(http.MethodGet, base+"/nodes/"+ai+"/variables?input_type=Text", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["data"], 1)
	assert.Equal(t, in, body["data"].([]any)[0].(map[string]any)["node_id"])
}

func TestRunFlow(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession()
	base := "/api/v1/sessions/" + sid

	w, body := ts.do(http.MethodPost, base+"/runs", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "NOT_READY", errorCode(body))

	in := ts.addNode(sid, "input", map[string]any{"required": true})
	out := ts.addNode(sid, "output", nil)
	ts.connect(sid, in, out)

	w, body = ts.do(http.MethodPost, base+"/workflow/save", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	workflowID := body["id"].(string)

	_, body = ts.do(http.MethodGet, base+"/readiness", nil)
	assert.Equal(t, false, body["ready"])

	w, body = ts.do(http.MethodPut, base+"/inputs/input_9", map[string]any{"value": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "INPUT_NOT_FOUND", errorCode(body))

	w, _ = ts.do(http.MethodPut, base+"/inputs/input_0", map[string]any{"value": "hello"})
	require.Equal(t, http.StatusOK, w.Code)

	_, body = ts.do(http.MethodGet, base+"/readiness", nil)
	assert.Equal(t, true, body["ready"])

	w, _ = ts.do(http.MethodPut, base+"/mode", map[string]any{"mode": "karaoke"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = ts.do(http.MethodPut, base+"/mode", map[string]any{"mode": "chatbot"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	ts.backend.On("Execute", mock.Anything, mock.MatchedBy(func(req *domain.ExecuteRequest) bool {
		return req.WorkflowID == workflowID && req.Mode == domain.ModeChatbot && req.Inputs["input_0"].Value == "hello"
	})).Return(&domain.ExecuteResponse{
		Status:        domain.ResponseStatusOK,
		ExecutionTime: 1.5,
		ExecutionPath: []string{in, out},
		Outputs: map[string]domain.OutputResult{
			"output_0": {Output: "HELLO", Type: "Text", NodeID: out},
		},
	}, nil)

	w, body = ts.do(http.MethodPost, base+"/runs", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEmpty(t, body["run_id"])

	w, body = ts.do(http.MethodGet, base+"/runs/current?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["state"])
	assert.Equal(t, 1.5, body["execution_time"])
	assert.Len(t, body["results"], 1)
	ts.backend.AssertExpectations(t)
}

func TestWorkflowEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	wf, err := ts.repo.Create(ctx, &domain.Workflow{Name: "Stored"})
	require.NoError(t, err)

	w, body := ts.do(http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, body = ts.do(http.MethodPost, "/api/v1/sessions", map[string]any{"workflow_id": wf.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	graph := body["graph"].(map[string]any)
	assert.Equal(t, wf.ID, graph["workflow_id"])
	assert.Equal(t, "Stored", graph["workflow_name"])

	w, body = ts.do(http.MethodPost, "/api/v1/sessions", map[string]any{"workflow_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "WORKFLOW_NOT_FOUND", errorCode(body))

	w, body = ts.do(http.MethodPost, "/api/v1/workflows/"+wf.ID+"/clone", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "NOT_SUPPORTED", errorCode(body))

	w, _ = ts.do(http.MethodDelete, "/api/v1/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = ts.do(http.MethodGet, "/api/v1/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDrafts(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession()
	ts.addNode(sid, "input", nil)

	w, body := ts.do(http.MethodPost, "/api/v1/sessions/"+sid+"/draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sid, body["key"])

	other := ts.createSession()
	w, body = ts.do(http.MethodPost, "/api/v1/sessions/"+other+"/draft/restore", map[string]any{"key": sid})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["nodes"], 1)

	w, body = ts.do(http.MethodPost, "/api/v1/sessions/"+other+"/draft/restore", map[string]any{"key": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "DRAFT_NOT_FOUND", errorCode(body))
}

func workflowWithPrompt(prompt string) *domain.Workflow {
	return &domain.Workflow{
		Name: "Second",
		Nodes: []domain.Node{
			{ID: "input_0", Type: "input", Data: domain.NodeData{Params: map[string]any{"nodeName": "input_0"}}},
			{ID: "openai_0", Type: "openai", Data: domain.NodeData{Params: map[string]any{"nodeName": "openai_0", "prompt": prompt}}},
			{ID: "output_0", Type: "output", Data: domain.NodeData{Params: map[string]any{"nodeName": "output_0"}}},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "input_0", Target: "openai_0"},
			{ID: "e2", Source: "openai_0", Target: "output_0"},
		},
	}
}

func TestFieldStateDoesNotSurviveWorkflowSwitch(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession()
	base := "/api/v1/sessions/" + sid

	in := ts.addNode(sid, "input", nil)
	ai := ts.addNode(sid, "openai", nil)
	ts.connect(sid, in, ai)

	_, body := ts.do(http.MethodPost, base+"/fields/"+ai+"/prompt/input", map[string]any{"value": "OLD workflow {{in"})
	require.Equal(t, true, body["open"])

	wf, err := ts.repo.Create(context.Background(), workflowWithPrompt("fresh prompt"))
	require.NoError(t, err)
	w, _ := ts.do(http.MethodPost, base+"/workflow/load", map[string]any{"workflow_id": wf.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = ts.do(http.MethodPost, base+"/fields/"+ai+"/prompt/keydown", map[string]any{"key": "Enter"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["consumed"])
	state := body["state"].(map[string]any)
	assert.Equal(t, "fresh prompt", state["value"])

	_, body = ts.do(http.MethodGet, base+"/graph", nil)
	assert.Equal(t, wf.ID, body["workflow_id"])
	for _, n := range body["nodes"].([]any) {
		node := n.(map[string]any)
		if node["id"] == "openai_0" {
			assert.Equal(t, "fresh prompt", node["data"].(map[string]any)["params"].(map[string]any)["prompt"])
		}
	}
}

func TestRunDoesNotSurviveWorkflowSwitch(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession()
	base := "/api/v1/sessions/" + sid

	in := ts.addNode(sid, "input", nil)
	out := ts.addNode(sid, "output", nil)
	ts.connect(sid, in, out)
	w, _ := ts.do(http.MethodPost, base+"/workflow/save", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	called := make(chan struct{})
	release := make(chan struct{})
	ts.backend.On("Execute", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(called)
			<-release
		}).
		Return(&domain.ExecuteResponse{
			Status:        domain.ResponseStatusOK,
			ExecutionPath: []string{in, out},
			Outputs: map[string]domain.OutputResult{
				"output_0": {Output: "HELLO", Type: "Text", NodeID: out},
			},
		}, nil).Once()

	w, _ = ts.do(http.MethodPost, base+"/runs", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	<-called

	wf, err := ts.repo.Create(context.Background(), workflowWithPrompt(""))
	require.NoError(t, err)
	w, _ = ts.do(http.MethodPost, base+"/workflow/load", map[string]any{"workflow_id": wf.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, body := ts.do(http.MethodGet, base+"/runs/current", nil)
	assert.Equal(t, "idle", body["state"])
	close(release)

	// the released call must leave neither the run nor the new graph touched
	for deadline := time.Now().Add(100 * time.Millisecond); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		_, run := ts.do(http.MethodGet, base+"/runs/current", nil)
		require.Equal(t, "idle", run["state"])
		require.Nil(t, run["results"])

		_, graph := ts.do(http.MethodGet, base+"/graph", nil)
		for _, n := range graph["nodes"].([]any) {
			require.Nil(t, n.(map[string]any)["data"].(map[string]any)["results"])
		}
	}
}
