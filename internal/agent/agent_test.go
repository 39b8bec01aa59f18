package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inetanalyzer/agent/internal/measure"
	"github.com/inetanalyzer/agent/internal/probe"
	"github.com/inetanalyzer/agent/internal/report"
	"github.com/inetanalyzer/agent/internal/token"
	"github.com/inetanalyzer/agent/internal/uplink"
	"github.com/inetanalyzer/agent/pkg/types"
)

type stubProber struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubProber) Measure(ctx context.Context, spec measure.EndpointSpec, kind measure.Kind) ([]report.Item, error) {
	s.mu.Lock()
	s.calls = append(s.calls, spec.HostPattern+"/"+kind.String())
	s.mu.Unlock()
	return []report.Item{
		report.NewFetchItem(spec.HostPattern, report.Success(12), int(kind), report.Cold, "trans.gif", spec.ExperimentID, nil),
		report.NewFetchItem(spec.HostPattern, report.Success(4), int(kind), report.Warm, "trans.gif", spec.ExperimentID, nil),
	}, nil
}

type stubUploader struct {
	endpoints []string
	query     string
	err       error
}

func (s *stubUploader) Upload(ctx context.Context, endpoints []string, query string) (uplink.Result, error) {
	s.endpoints = endpoints
	s.query = query
	if s.err != nil {
		return uplink.Result{}, s.err
	}
	return uplink.Result{URL: endpoints[0] + "?" + query, Body: []byte("ok")}, nil
}

type runObservation struct {
	items int
	err   error
}

type recordingRuns struct {
	dropped int
	runs    []runObservation
}

func (r *recordingRuns) ObserveConfigFetch(ok bool)    {}
func (r *recordingRuns) ObserveSignatureFailure()      {}
func (r *recordingRuns) ObserveDroppedEndpoints(n int) { r.dropped += n }
func (r *recordingRuns) ObserveUpload(ok bool)         {}
func (r *recordingRuns) ObserveRun(ts time.Time, items int, err error) {
	r.runs = append(r.runs, runObservation{items: items, err: err})
}

const document = `{
  "n": 5,
  "r": ["collector.example.com/report/r.gif"],
  "e": [
    {"m": 3, "w": 10, "e": "both.example.com", "ex": "exp-1"},
    {"m": 1, "w": 10, "e": "tls.example.com"},
    {"m": 4, "w": 50, "e": "rtt.example.com"}
  ]
}`

func newTestAgent(t *testing.T, prober *stubProber, uploader Uploader, rec *recordingRuns) *Agent {
	t.Helper()
	a, err := New(
		Config{MonitorID: "mon-1", Tag: "lab", Version: "1.0.0"},
		Dependencies{
			Prober:   prober,
			Uploader: uploader,
			Rand:     rand.New(rand.NewSource(7)),
			Tokens:   token.NewSource(rand.New(rand.NewSource(11))),
			Metrics:  rec,
		},
	)
	require.NoError(t, err)
	return a
}

func TestExecuteMeasuresAndUploads(t *testing.T) {
	prober := &stubProber{}
	uploader := &stubUploader{}
	rec := &recordingRuns{}
	a := newTestAgent(t, prober, uploader, rec)

	out, err := a.Execute(context.Background(), []byte(document))
	require.NoError(t, err)

	assert.Regexp(t, `^[0-9a-f]{32}$`, out.RunID)
	assert.Len(t, out.Sampled, 2)
	assert.Equal(t, 1, out.Dropped)
	assert.Len(t, out.Items, 6)
	assert.Equal(t, []string{"collector.example.com/report/r.gif"}, uploader.endpoints)
	assert.Equal(t, 1, rec.dropped)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, 6, rec.runs[0].items)
	assert.NoError(t, rec.runs[0].err)

	env, err := report.ParseUpload(uploader.query)
	require.NoError(t, err)
	assert.Equal(t, "mon-1", env.MonitorID)
	assert.Equal(t, out.RunID, env.RunID)
	assert.Equal(t, "inetanalyzer-go:1.0.0", env.Version)
	assert.Equal(t, "lab", env.Tag)
	require.Len(t, env.Data, 6)
	for _, rec := range env.Data {
		assert.NotEqual(t, "rtt.example.com", rec.RequestID)
	}

	// both.example.com issues HTTP before HTTPS
	for i, call := range prober.calls {
		if call == "both.example.com/https" {
			require.Greater(t, i, 0)
			assert.Equal(t, "both.example.com/http", prober.calls[i-1])
		}
	}
}

func TestExecuteIsDeterministicForSeed(t *testing.T) {
	first := &stubProber{}
	second := &stubProber{}
	_, err := newTestAgent(t, first, &stubUploader{}, &recordingRuns{}).Execute(context.Background(), []byte(document))
	require.NoError(t, err)
	_, err = newTestAgent(t, second, &stubUploader{}, &recordingRuns{}).Execute(context.Background(), []byte(document))
	require.NoError(t, err)
	assert.Equal(t, first.calls, second.calls)
}

func TestExecuteConfigErrorBeforeNetwork(t *testing.T) {
	prober := &stubProber{}
	uploader := &stubUploader{}
	a := newTestAgent(t, prober, uploader, &recordingRuns{})

	_, err := a.Execute(context.Background(), []byte(`{"n":1,"e":[]}`))
	var cfgErr *measure.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "r", cfgErr.Field)
	assert.Empty(t, prober.calls)
	assert.Empty(t, uploader.query)
}

func TestExecuteUploadFailure(t *testing.T) {
	fallback := &uplink.FallbackError{URL: "https://collector.example.com/report/r.gif", Err: errors.New("refused")}
	rec := &recordingRuns{}
	a := newTestAgent(t, &stubProber{}, &stubUploader{err: fallback}, rec)

	_, err := a.Execute(context.Background(), []byte(document))
	var got *uplink.FallbackError
	require.ErrorAs(t, err, &got)
	require.Len(t, rec.runs, 1)
	assert.Error(t, rec.runs[0].err)
}

func TestExecuteRequiresMonitorID(t *testing.T) {
	a, err := New(Config{}, Dependencies{Prober: &stubProber{}, Uploader: &stubUploader{}})
	require.NoError(t, err)
	_, err = a.Execute(context.Background(), []byte(document))
	assert.ErrorIs(t, err, ErrMissingMonitorID)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Dependencies{Uploader: &stubUploader{}})
	assert.Error(t, err)
	_, err = New(Config{}, Dependencies{Prober: &stubProber{}})
	assert.Error(t, err)
}

func TestRunZeroCount(t *testing.T) {
	prober := &stubProber{}
	a := newTestAgent(t, prober, &stubUploader{}, &recordingRuns{})
	doc, err := measure.ParseDocument([]byte(strings.Replace(document, `"n": 5`, `"n": -2`, 1)))
	require.NoError(t, err)

	items, err := a.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, prober.calls)
}

func TestRunSkipsUnusableEndpoint(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer target.Close()
	host := strings.TrimPrefix(target.URL, "http://")

	a, err := New(
		Config{MonitorID: "mon-1"},
		Dependencies{
			Prober:   probe.New(probe.Config{Timeout: 5 * time.Second}, probe.Dependencies{}),
			Uploader: &stubUploader{},
			Rand:     rand.New(rand.NewSource(3)),
		},
	)
	require.NoError(t, err)

	doc := measure.Document{
		Count:           2,
		UploadEndpoints: []string{"collector.example.com/r.gif"},
		Endpoints: []measure.EndpointSpec{
			{Weight: 1, HostPattern: "", Kinds: measure.KindHTTP},
			{Weight: 1, HostPattern: host, Kinds: measure.KindHTTP},
		},
	}
	items, err := a.Run(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, host, item.(report.FetchItem).RequestID)
	}
}

func TestExecuteEndToEnd(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail.gif" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-MachineName", "edge")
	}))
	defer target.Close()

	var mu sync.Mutex
	var uploaded []types.UploadEnvelope
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env, err := report.ParseUploadValues(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		uploaded = append(uploaded, env)
		mu.Unlock()
	}))
	defer collector.Close()

	host := strings.TrimPrefix(target.URL, "http://")
	doc := fmt.Sprintf(`{"n":2,"r":[%q],"e":[{"m":2,"w":1,"e":%q},{"m":2,"w":1,"e":%q,"o":"fail.gif"}]}`,
		strings.TrimPrefix(collector.URL, "http://")+"/report/r.gif", host, host)

	a, err := New(
		Config{MonitorID: "mon-e2e", Tag: "t"},
		Dependencies{
			Prober:   probe.New(probe.Config{Timeout: 5 * time.Second}, probe.Dependencies{}),
			Uploader: uplink.NewClient(uplink.Config{UploadScheme: "http://"}, uplink.Dependencies{}),
			Rand:     rand.New(rand.NewSource(1)),
		},
	)
	require.NoError(t, err)

	out, err := a.Execute(context.Background(), []byte(doc))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Upload.URL, collector.URL+"/report/r.gif?MonitorId=mon-e2e&rid="))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, uploaded, 1)
	env := uploaded[0]
	require.Len(t, env.Data, 3)

	var fails, cold, warm int
	for _, rec := range env.Data {
		assert.Equal(t, int(measure.KindHTTP), rec.T)
		assert.Equal(t, host, rec.RequestID)
		switch {
		case rec.Result == -500:
			fails++
			assert.Equal(t, "Cold", rec.Conn)
			assert.Equal(t, "fail.gif", rec.Object)
		case rec.Conn == "Cold":
			cold++
			assert.Equal(t, "edge", rec.Mn)
		case rec.Conn == "Warm":
			warm++
		}
	}
	assert.Equal(t, 1, fails)
	assert.Equal(t, 1, cold)
	assert.Equal(t, 1, warm)
}
