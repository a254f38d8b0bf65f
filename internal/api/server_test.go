package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/shiftscan/internal/config"
	"github.com/sells-group/shiftscan/internal/dispatch"
	"github.com/sells-group/shiftscan/internal/extract"
	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/normalize"
	"github.com/sells-group/shiftscan/internal/pipeline"
	"github.com/sells-group/shiftscan/internal/scorer"
	"github.com/sells-group/shiftscan/internal/session"
	"github.com/sells-group/shiftscan/internal/store"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	m.Run()
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

type fakeSubmitter struct {
	got pipeline.SubmitRequest
	res *model.SubmitResult
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, req pipeline.SubmitRequest) (*model.SubmitResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeRuns struct {
	store.Store
	runs   map[string]*model.Run
	filter store.RunFilter
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (*model.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	f.filter = filter
	var out []model.Run
	for _, r := range f.runs {
		if r.UserID == filter.UserID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fixture struct {
	handler   http.Handler
	submitter *fakeSubmitter
	sessions  *session.Manager
	runs      *fakeRuns
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sub := &fakeSubmitter{res: &model.SubmitResult{SessionID: "s-1", Consolidated: model.EmptyResult()}}
	sessions := session.NewManager(session.NewMemoryStore(10, time.Hour))
	runs := &fakeRuns{runs: map[string]*model.Run{
		"r-1": {ID: "r-1", UserID: "user-1", Status: model.SessionCompleted},
		"r-2": {ID: "r-2", UserID: "user-2", Status: model.SessionFailed},
	}}
	srv := NewServer(Options{
		Submitter:        sub,
		Sessions:         sessions,
		Providers:        extract.NewRegistry(),
		Runs:             runs,
		DefaultProviders: []model.ProviderID{model.ProviderClaude, model.ProviderMistral},
		MaxImageBytes:    1024,
	})
	return &fixture{handler: srv.Handler(), submitter: sub, sessions: sessions, runs: runs}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func multipartRequest(t *testing.T, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if image != nil {
		fw, err := mw.CreateFormFile("image", "schedule.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/extractions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderUserID, "user-1")
	req.Header.Set(HeaderUserName, "Aiko")
	return req
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&m))
	return m
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decode(t, rr.Body)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestProviders(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/v1/providers", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr.Body)
	assert.Equal(t, []any{}, body["providers"])
	assert.Equal(t, []any{}, body["breakers"])
}

func TestSubmit_MissingUser(t *testing.T) {
	f := newFixture(t)
	req := multipartRequest(t, pngBytes, nil)
	req.Header.Del(HeaderUserID)

	rr := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSubmit_DefaultsAndFields(t *testing.T) {
	f := newFixture(t)

	rr := f.do(multipartRequest(t, pngBytes, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "s-1", decode(t, rr.Body)["session_id"])

	got := f.submitter.got
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "Aiko", got.UserName)
	assert.Equal(t, "image/png", got.Image.MediaType)
	assert.Equal(t, []model.ProviderID{model.ProviderClaude, model.ProviderMistral}, got.Providers)
	assert.Nil(t, got.ConfidenceThreshold)

	rr = f.do(multipartRequest(t, pngBytes, map[string]string{
		"providers":      "Tesseract, claude",
		"compare":        "true",
		"threshold":      "0.85",
		"reference_year": "2024",
	}))
	require.Equal(t, http.StatusOK, rr.Code)

	got = f.submitter.got
	assert.Equal(t, []model.ProviderID{model.ProviderTesseract, model.ProviderClaude}, got.Providers)
	assert.True(t, got.CompareAcrossProviders)
	require.NotNil(t, got.ConfidenceThreshold)
	assert.Equal(t, 0.85, *got.ConfidenceThreshold)
	assert.Equal(t, 2024, got.ReferenceYear)
}

func TestSubmit_BadInput(t *testing.T) {
	tests := []struct {
		name   string
		image  []byte
		fields map[string]string
	}{
		{"missing image", nil, nil},
		{"bad threshold", pngBytes, map[string]string{"threshold": "high"}},
		{"bad compare", pngBytes, map[string]string{"compare": "maybe"}},
		{"bad year", pngBytes, map[string]string{"reference_year": "next"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do(multipartRequest(t, tt.image, tt.fields))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, decode(t, rr.Body)["error"])
		})
	}
}

func TestSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		sessionID string
	}{
		{"invalid", &pipeline.FailedError{SessionID: "s-9", Err: eris.Wrap(pipeline.ErrInvalid, "unknown provider")}, http.StatusBadRequest, "s-9"},
		{"no providers", &pipeline.FailedError{SessionID: "s-8", Err: pipeline.ErrNoProviders}, http.StatusServiceUnavailable, "s-8"},
		{"internal", errors.New("session store down"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.submitter.res, f.submitter.err = nil, tt.err

			rr := f.do(multipartRequest(t, pngBytes, nil))
			assert.Equal(t, tt.status, rr.Code)
			body := decode(t, rr.Body)
			if tt.sessionID != "" {
				assert.Equal(t, tt.sessionID, body["session_id"])
			} else {
				assert.NotContains(t, body, "session_id")
			}
		})
	}
}

type cafeExtractor struct{}

func (cafeExtractor) ID() model.ProviderID { return model.ProviderClaude }

func (cafeExtractor) Extract(context.Context, model.Image, model.Hints) (*model.RawPayload, error) {
	return &model.RawPayload{
		Provider: model.ProviderClaude,
		Kind:     model.PayloadJSON,
		Body:     `{"shifts":[{"date":"2024-07-20","start_time":"09:00","end_time":"17:00","workplace_name":"Cafe"}]}`,
	}, nil
}

func TestSubmit_UnreadableImageFailsSession(t *testing.T) {
	reg := extract.NewRegistry()
	reg.Register(cafeExtractor{})
	n := normalize.New(normalize.DefaultOptions())
	d := dispatch.New(reg, n, scorer.New(scorer.DefaultConfig(), n.Placeholder()), time.Second)
	sessions := session.NewManager(session.NewMemoryStore(10, time.Hour))
	p := pipeline.New(config.ExtractConfig{MaxImageBytes: 1024}, sessions, reg, d, nil)

	handler := NewServer(Options{
		Submitter:     p,
		Sessions:      sessions,
		Providers:     reg,
		MaxImageBytes: 1024,
	}).Handler()

	tests := []struct {
		name  string
		image []byte
	}{
		{"empty", []byte{}},
		{"not an image", []byte("just some text")},
		{"too large", append(append([]byte{}, pngBytes...), make([]byte, 2048)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, tt.image, map[string]string{"providers": "claude"})
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, http.StatusBadRequest, rr.Code)
			body := decode(t, rr.Body)
			id, _ := body["session_id"].(string)
			require.NotEmpty(t, id)

			sess, err := sessions.Get(context.Background(), id, "user-1")
			require.NoError(t, err)
			assert.Equal(t, model.SessionFailed, sess.Status)
		})
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, multipartRequest(t, pngBytes, map[string]string{"providers": "claude"}))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSessionLookupAndDispose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.sessions.Create(ctx, "user-1", "", model.Options{Providers: []model.ProviderID{model.ProviderClaude}})
	require.NoError(t, err)

	get := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sess.ID, nil)
		req.Header.Set(HeaderUserID, user)
		return f.do(req)
	}

	rr := get("user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr.Body)
	assert.Equal(t, sess.ID, body["session_id"])
	assert.Equal(t, "processing", body["status"])
	assert.NotContains(t, body, "outcomes")

	assert.Equal(t, http.StatusForbidden, get("user-2").Code)

	del := httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sess.ID, nil)
	del.Header.Set(HeaderUserID, "user-2")
	assert.Equal(t, http.StatusForbidden, f.do(del).Code)

	del = httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sess.ID, nil)
	del.Header.Set(HeaderUserID, "user-1")
	assert.Equal(t, http.StatusNoContent, f.do(del).Code)

	assert.Equal(t, http.StatusNotFound, get("user-1").Code)
}

func TestRuns(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?needs_review=true&limit=5", nil)
	req.Header.Set(HeaderUserID, "user-1")
	rr := f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	runs := decode(t, rr.Body)["runs"].([]any)
	assert.Len(t, runs, 1)
	assert.Equal(t, "user-1", f.runs.filter.UserID)
	assert.Equal(t, 5, f.runs.filter.Limit)
	require.NotNil(t, f.runs.filter.NeedsReview)
	assert.True(t, *f.runs.filter.NeedsReview)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs?limit=-1", nil)
	req.Header.Set(HeaderUserID, "user-1")
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)

	for id, want := range map[string]int{"r-1": http.StatusOK, "r-2": http.StatusForbidden, "r-3": http.StatusNotFound} {
		req = httptest.NewRequest(http.MethodGet, "/v1/runs/"+id, nil)
		req.Header.Set(HeaderUserID, "user-1")
		assert.Equal(t, want, f.do(req).Code, id)
	}
}

func TestRuns_Disabled(t *testing.T) {
	srv := NewServer(Options{Sessions: session.NewManager(session.NewMemoryStore(1, time.Minute))})
	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set(HeaderUserID, "user-1")

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestParseProviders(t *testing.T) {
	assert.Nil(t, parseProviders(nil))
	assert.Equal(t,
		[]model.ProviderID{"claude", "mistral", "tesseract"},
		parseProviders([]string{"claude, MISTRAL", " ", "tesseract"}),
	)
}
