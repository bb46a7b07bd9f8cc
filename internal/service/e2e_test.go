package service_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragoneye/internal/adapters/downloader"
	"dragoneye/internal/adapters/dragoneye"
	"dragoneye/internal/adapters/localstorage"
	"dragoneye/internal/core/domain"
	"dragoneye/internal/media"
	"dragoneye/internal/service"
)

// fakeAPI serves the task lifecycle, the presigned upload and a media file
// from a single test server.
type fakeAPI struct {
	mu         sync.Mutex
	calls      []string
	statuses   []string
	uploadAuth string
	uploadKey  string
	uploadFile string
	model      string
}

func (f *fakeAPI) handler(t *testing.T, baseURL func() string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/prediction-task/begin", func(w http.ResponseWriter, r *http.Request) {
		f.record("begin")
		fmt.Fprintf(w, `{"prediction_task_uuid":"T1","prediction_type":"image","signed_urls":[{"blob_path":"b","presigned_post_request":{"url":%q,"fields":{"key":"v"}}}]}`, baseURL()+"/up")
	})
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		f.record("upload")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploadAuth = r.Header.Get("Authorization")
		f.uploadKey = r.FormValue("key")
		f.uploadFile = string(data)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		f.record("trigger")
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.model = r.PostForm.Get("model_name")
		f.mu.Unlock()
	})
	mux.HandleFunc("/prediction-task/status", func(w http.ResponseWriter, r *http.Request) {
		n := f.record("status")
		status := f.statuses[min(n, len(f.statuses))-1]
		fmt.Fprintf(w, `{"prediction_task_uuid":"T1","prediction_type":"image","status":%q}`, status)
	})
	mux.HandleFunc("/prediction-task/results", func(w http.ResponseWriter, r *http.Request) {
		f.record("results")
		fmt.Fprint(w, `{"predictions":[]}`)
	})
	mux.HandleFunc("/media/photo.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "remote-jpeg")
	})
	return mux
}

// record logs a call and returns how many calls of that name were made.
func (f *fakeAPI) record(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func startFakeAPI(t *testing.T, statuses ...string) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{statuses: statuses}
	var srv *httptest.Server
	srv = httptest.NewServer(api.handler(t, func() string { return srv.URL }))
	t.Cleanup(srv.Close)
	return api, srv
}

func newHTTPOrchestrator(t *testing.T, srv *httptest.Server) (*service.Orchestrator, *localstorage.LocalStorage) {
	t.Helper()
	client, err := dragoneye.NewClient(dragoneye.Options{BaseURL: srv.URL, APIKey: "k"}, zerolog.Nop())
	require.NoError(t, err)
	journal := localstorage.NewLocalStorage(t.TempDir())
	return service.NewOrchestrator(client, downloader.NewHTTPDownloader(0), journal, testInterval, zerolog.Nop()), journal
}

func TestEndToEndImagePrediction(t *testing.T) {
	api, srv := startFakeAPI(t, "processing", "predicted")
	orch, journal := newHTTPOrchestrator(t, srv)

	res, err := orch.PredictImage(context.Background(), imageSource(t), "dragoneye/furniture")
	require.NoError(t, err)
	assert.Equal(t, "T1", res.PredictionTaskUUID)
	assert.Empty(t, res.Predictions)

	assert.Equal(t, []string{"begin", "upload", "trigger", "status", "status", "results"}, api.calls)
	assert.Empty(t, api.uploadAuth)
	assert.Equal(t, "v", api.uploadKey)
	assert.Equal(t, "jpeg-bytes", api.uploadFile)
	assert.Equal(t, "dragoneye/furniture", api.model)

	rec, err := journal.LoadTask(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPredicted, rec.Status)
	assert.FileExists(t, rec.ResultPath)
}

func TestEndToEndURLMedia(t *testing.T) {
	api, srv := startFakeAPI(t, "predicted")
	orch, _ := newHTTPOrchestrator(t, srv)

	src, err := media.FromURL(srv.URL+"/media/photo.jpg", "")
	require.NoError(t, err)

	_, err = orch.PredictImage(context.Background(), src, "m")
	require.NoError(t, err)
	assert.Equal(t, "remote-jpeg", api.uploadFile)
}

func TestEndToEndUnreachableMediaCreatesNoTask(t *testing.T) {
	api, srv := startFakeAPI(t, "predicted")
	orch, _ := newHTTPOrchestrator(t, srv)

	src, err := media.FromURL(srv.URL+"/media/missing.jpg", "image/jpeg")
	require.NoError(t, err)

	_, err = orch.PredictImage(context.Background(), src, "m")
	assert.ErrorIs(t, err, domain.ErrUpload)
	assert.Empty(t, api.calls)
}

func TestEndToEndFailedTask(t *testing.T) {
	api, srv := startFakeAPI(t, "pending", "failed_unsupported")
	orch, _ := newHTTPOrchestrator(t, srv)

	_, err := orch.PredictImage(context.Background(), imageSource(t), "m")
	assert.ErrorIs(t, err, domain.ErrTaskFailed)
	assert.NotContains(t, api.calls, "results")
}
