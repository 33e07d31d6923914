package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/eduvox/internal/model"
	"github.com/ekisa-team/eduvox/internal/prompt"
	"github.com/ekisa-team/eduvox/internal/service"
	"github.com/ekisa-team/eduvox/internal/session"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req service.GenerateRequest) service.Generation {
	args := m.Called(ctx, req)
	return args.Get(0).(service.Generation)
}

type MockSynthesizer struct {
	mock.Mock
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, sessionID, text string) (string, error) {
	args := m.Called(ctx, sessionID, text)
	return args.String(0), args.Error(1)
}

type fakeModels []model.Info

func (f fakeModels) Models() []model.Info {
	return f
}

type testEnv struct {
	handler   http.Handler
	generator *MockGenerator
	synth     *MockSynthesizer
	sessions  *session.Memory
	audioDir  string
	staticDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	env := &testEnv{
		generator: new(MockGenerator),
		synth:     new(MockSynthesizer),
		sessions:  session.NewMemory(),
		audioDir:  filepath.Join(root, "audio"),
		staticDir: filepath.Join(root, "static"),
	}
	require.NoError(t, os.MkdirAll(env.audioDir, 0o755))
	require.NoError(t, os.MkdirAll(env.staticDir, 0o755))

	models := fakeModels{
		{ID: "tinyllama", Type: model.ModelTypeLLM, Status: model.ModelStatusLoaded},
		{ID: "amy", Type: model.ModelTypeTTS, Status: model.ModelStatusFailed, Error: "piper exited with status 1"},
	}
	srv := New(Options{AudioDir: env.audioDir, StaticDir: env.staticDir, Version: "test"},
		env.generator, env.synth, env.sessions, models)
	env.handler = srv.Handler()

	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) synthesizeOK() {
	e.synth.On("Synthesize", mock.Anything, mock.Anything, mock.Anything).Return("ignored", nil)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "healthy"}, decode(t, rec))
}

func TestModes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/modes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"modes":[
		{"id":"mnemonic","name":"Mnemonic Generator"},
		{"id":"explain","name":"Simple Explanation"},
		{"id":"quiz","name":"Quick Quiz"}]}`, rec.Body.String())
}

func TestModels(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"models":[
		{"id":"tinyllama","type":"llm","status":"loaded"},
		{"id":"amy","type":"tts","status":"failed","error":"piper exited with status 1"}]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/models?type=tts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"models":[
		{"id":"amy","type":"tts","status":"failed","error":"piper exited with status 1"}]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/models?type=stt", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProcess_EmptyInput(t *testing.T) {
	env := newTestEnv(t)
	env.synth.On("Synthesize", mock.Anything, "default", EmptyInputResponse).Return("x", nil)

	rec := env.do(t, http.MethodPost, "/process", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"response":   EmptyInputResponse,
		"audio":      "/audio/output_default.wav",
		"session_id": "default",
	}, decode(t, rec))

	rec = env.do(t, http.MethodPost, "/process", `{"text":"   ","session_id":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, EmptyInputResponse, decode(t, rec)["response"])

	env.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	env.synth.AssertExpectations(t)
}

func TestProcess_StopPhrase(t *testing.T) {
	for _, text := range []string{"stop", "Please QUIT now", "how do I exit vim", "nonstop"} {
		t.Run(text, func(t *testing.T) {
			env := newTestEnv(t)
			env.synth.On("Synthesize", mock.Anything, "s1", InactiveResponse).Return("x", nil)

			rec := env.do(t, http.MethodPost, "/process", `{"text":"`+text+`","session_id":"s1"}`)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, InactiveResponse, decode(t, rec)["response"])

			env.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
			_, ok := env.sessions.Get("s1")
			assert.False(t, ok)
		})
	}
}

func TestProcess_Generates(t *testing.T) {
	env := newTestEnv(t)
	env.generator.On("Generate", mock.Anything, service.GenerateRequest{
		SessionID: "abc", Mode: prompt.ModeExplain, Text: "gravity",
	}).Return(service.Generation{Text: "Things fall down."})
	env.synth.On("Synthesize", mock.Anything, "abc", "Things fall down.").Return("x", nil)

	rec := env.do(t, http.MethodPost, "/process", `{"text":"gravity","session_id":"abc","mode":"explain"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"response":   "Things fall down.",
		"audio":      "/audio/output_abc.wav",
		"session_id": "abc",
	}, decode(t, rec))

	s, ok := env.sessions.Get("abc")
	require.True(t, ok)
	assert.Equal(t, []session.Turn{{User: "gravity", Assistant: "Things fall down."}}, s.Turns)

	rec = env.do(t, http.MethodGet, "/sessions/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id":"abc","turns":[{"user":"gravity","assistant":"Things fall down."}]}`, rec.Body.String())
}

func TestProcess_UnknownModeFallsBack(t *testing.T) {
	env := newTestEnv(t)
	env.generator.On("Generate", mock.Anything, mock.MatchedBy(func(req service.GenerateRequest) bool {
		return req.Mode == prompt.ModeMnemonic && req.SessionID == "default"
	})).Return(service.Generation{Text: "ROYGBIV"})
	env.synthesizeOK()

	rec := env.do(t, http.MethodPost, "/process", `{"text":"rainbow colors","mode":"poem"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ROYGBIV", decode(t, rec)["response"])
	env.generator.AssertExpectations(t)
}

func TestProcess_GenerationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.generator.On("Generate", mock.Anything, mock.Anything).Return(service.Generation{
		Text:   service.FallbackResponse,
		Reason: service.ReasonInference,
		Err:    assert.AnError,
	})
	env.synth.On("Synthesize", mock.Anything, "abc", service.FallbackResponse).Return("x", nil)

	rec := env.do(t, http.MethodPost, "/process", `{"text":"photosynthesis","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.FallbackResponse, decode(t, rec)["response"])

	s, ok := env.sessions.Get("abc")
	require.True(t, ok)
	assert.Empty(t, s.Turns)
}

func TestProcess_SynthesisFailure(t *testing.T) {
	for name, err := range map[string]error{
		"timeout": service.ErrAudioUnavailable,
		"engine":  assert.AnError,
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			env.generator.On("Generate", mock.Anything, mock.Anything).Return(service.Generation{Text: "Answer"})
			env.synth.On("Synthesize", mock.Anything, "abc", "Answer").Return("", err)

			rec := env.do(t, http.MethodPost, "/process", `{"text":"atoms","session_id":"abc"}`)
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, map[string]any{
				"response":   "Answer",
				"error":      "Failed to generate audio",
				"session_id": "abc",
			}, decode(t, rec))
		})
	}
}

func TestProcess_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/process", `{"text":"hi","session_id":"../../etc/passwd"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/process", `{"text":"`+strings.Repeat("a", 4097)+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/process", `{"text":`)
	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	assert.Less(t, rec.Code, http.StatusInternalServerError)

	env.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	env.synth.AssertNotCalled(t, "Synthesize", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessions_Unknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/sessions/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAudio(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.audioDir, "output_abc.wav"), []byte("RIFFWAVE"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(env.audioDir), "secret.txt"), []byte("secret"), 0o644))

	rec := env.do(t, http.MethodGet, "/audio/output_abc.wav", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RIFFWAVE", rec.Body.String())
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodGet, "/audio/missing.wav", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	partial := ".output_abc-" + uuid.NewString() + ".wav"
	require.NoError(t, os.WriteFile(filepath.Join(env.audioDir, partial), []byte("partial"), 0o644))
	rec = env.do(t, http.MethodGet, "/audio/"+partial, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, path := range []string{
		"/audio/..%2Fsecret.txt",
		"/audio/%2E%2E%2Fsecret.txt",
		"/audio/../secret.txt",
	} {
		rec = env.do(t, http.MethodGet, path, "")
		assert.NotEqual(t, http.StatusOK, rec.Code, path)
		assert.NotEqual(t, "secret", rec.Body.String(), path)
	}
}

func TestIndexAndStatic(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.staticDir, "index.html"), []byte("<h1>Edu-Vox</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.staticDir, "script.js"), []byte("let x;"), 0o644))

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Edu-Vox")

	rec = env.do(t, http.MethodGet, "/static/script.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "let x;", rec.Body.String())
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.Header.Set(RequestIDHeader, id)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/modes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env.do(t, http.MethodGet, "/audio/missing.wav", "")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var records []map[string]any
	for _, line := range lines {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		if record["msg"] == "HTTP request" {
			records = append(records, record)
		}
	}
	require.Len(t, records, 2)

	assert.Equal(t, "/modes", records[0]["path"])
	assert.InDelta(t, http.StatusOK, records[0]["status"], 0)
	assert.InDelta(t, rec.Body.Len(), records[0]["bytes"], 0)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), records[0]["request_id"])

	assert.Equal(t, "/audio/missing.wav", records[1]["path"])
	assert.InDelta(t, http.StatusNotFound, records[1]["status"], 0)
}

func TestValidFileName(t *testing.T) {
	assert.True(t, validFileName("output_abc.wav"))
	for _, name := range []string{"", ".", "..", "../x", "a/b", `a\b`, "/abs", ".output_abc-1234.wav"} {
		assert.False(t, validFileName(name), name)
	}
}
