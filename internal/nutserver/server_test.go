package nutserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiattack/internal/imaging"
	"optiattack/internal/model"
	"optiattack/internal/oracle"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startServer(t *testing.T, classifier Classifier) (*oracle.Client, *httptest.Server) {
	t.Helper()
	srv := New(Config{ControllerHost: "localhost", ControllerPort: 38000}, classifier, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return oracle.NewClientForURL(ts.URL+oracle.DefaultBasePath, 2*time.Second, nil), ts
}

func TestChannelClassifierRanksDominantChannel(t *testing.T) {
	c := NewChannelClassifier()
	preds, err := c.Classify(context.Background(), imaging.Blank(4, 4, model.Color{R: 10, G: 200, B: 30}))
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, "green", preds[0].Label)

	total := 0.0
	for _, p := range preds {
		total += p.Score
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestRunThenEvaluateThroughOracleClient(t *testing.T) {
	client, _ := startServer(t, NewChannelClassifier())
	ctx := context.Background()

	base := imaging.Blank(2, 2, model.Color{R: 200, G: 20, B: 20})
	run, err := client.Run(ctx, base)
	require.NoError(t, err)
	assert.True(t, run.IsRunning)
	assert.Equal(t, "localhost", run.ControllerHost)
	top, _ := run.Predictions.Top()
	assert.Equal(t, "red", top.Label)

	blue := imaging.Blank(2, 2, model.Color{B: 255})
	preds, err := client.Evaluate(ctx, blue)
	require.NoError(t, err)
	top, _ = preds.Top()
	assert.Equal(t, "blue", top.Label)

	results, err := client.TestResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, results.Classified)

	stopped, err := client.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, stopped.IsRunning)
	assert.Nil(t, stopped.ControllerPort)

	info, err := client.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, oracle.PathNewAction, info.NewAction)
}

func TestRaggedImageIsBadRequest(t *testing.T) {
	_, ts := startServer(t, NewChannelClassifier())
	body := `{"image":[[[1,2,3],[4,5,6]],[[7,8,9]]]}`
	resp, err := http.Post(ts.URL+oracle.DefaultBasePath+oracle.PathNewAction, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClassifierFailureMapsToUnavailable(t *testing.T) {
	failing := ClassifierFunc(func(context.Context, *imaging.Image) (model.Predictions, error) {
		return nil, errors.New("model not loaded")
	})
	client, _ := startServer(t, failing)
	_, err := client.Evaluate(context.Background(), imaging.Blank(1, 1, model.Color{}))
	require.ErrorIs(t, err, oracle.ErrUnavailable)
}

func TestHealthRoute(t *testing.T) {
	_, ts := startServer(t, NewChannelClassifier())
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv := New(Config{}, NewChannelClassifier(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
