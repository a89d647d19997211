package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/torosent/benchhub/internal/config"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/output"
	"github.com/torosent/benchhub/internal/registry"
	"github.com/torosent/benchhub/internal/rpc"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.MaxConnections = 2
	cfg.FlushInterval = 50 * time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.JSONOutput = true
	require.NoError(t, cfg.Validate())
	return cfg
}

type running struct {
	srv    *server
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, cfg *config.Config, out io.Writer) *running {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := newServer(ctx, cfg, zaptest.NewLogger(t), out)
	require.NoError(t, err)
	t.Cleanup(srv.close)

	r := &running{srv: srv, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- srv.run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(10 * time.Second):
		}
	})
	return r
}

func (r *running) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func dial(t *testing.T, srv *server) *rpc.Client {
	t.Helper()
	client, err := rpc.Dial(rpc.ClientConfig{Target: srv.rpcAddr().String(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func records(t *testing.T, out string) []output.Record {
	t.Helper()
	var recs []output.Record
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec), "line %q", sc.Text())
		recs = append(recs, rec)
	}
	return recs
}

func TestServeEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds = []string{"write_records:count == 100", "read_records:count == 50"}
	cfg.HTMLOutput = filepath.Join(t.TempDir(), "report.html")

	var stdout bytes.Buffer
	r := start(t, cfg, &stdout)
	client := dial(t, r.srv)
	ctx := context.Background()

	id, err := client.RegisterClient(ctx, registry.ClientConfig{StorageName: "s3", Writers: 1, Readers: 1, MaxConnections: 2})
	require.NoError(t, err)
	require.NoError(t, client.SubmitSamples(ctx, id, metrics.SampleBatch{WriteCount: 100, WriteBytes: 500000}))
	require.NoError(t, client.SubmitSamples(ctx, id, metrics.SampleBatch{ReadCount: 50, ReadBytes: 200000}))

	snap, err := client.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Connections)
	require.Equal(t, cfg.Queue.Entries, snap.QueueEntries)

	resp, err := http.Get("http://" + r.srv.metricsAddr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "benchhub_ingestion_connections 1")
	require.Contains(t, string(body), `benchhub_admission_underflows_total{gate="ingestion"} 0`)

	require.NoError(t, client.CloseClient(ctx, id))
	r.stop(t)
	require.NoError(t, r.srv.finish())

	recs := records(t, stdout.String())
	require.NotEmpty(t, recs)
	totals := recs[len(recs)-1]
	require.Equal(t, "totals", totals.Type)
	require.Equal(t, int64(100), totals.Stats.Write.Records)
	require.Equal(t, int64(500000), totals.Stats.Write.Bytes)
	require.Equal(t, int64(50), totals.Stats.Read.Records)
	require.Equal(t, int64(200000), totals.Stats.Read.Bytes)
	require.Equal(t, int64(1), totals.MaxWriters)
	require.Equal(t, int64(0), totals.Writers)

	html, err := os.ReadFile(cfg.HTMLOutput)
	require.NoError(t, err)
	require.Contains(t, string(html), "<html")
}

func TestServeFailsOnBrokenThreshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds = []string{"write_records:count > 0"}

	r := start(t, cfg, io.Discard)
	r.stop(t)

	err := r.srv.finish()
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 1 thresholds failed")
}

func TestServeRejectsOverCeiling(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConnections = 1
	cfg.MetricsAddr = ""

	r := start(t, cfg, io.Discard)
	require.Nil(t, r.srv.metricsAddr())
	client := dial(t, r.srv)
	ctx := context.Background()

	_, err := client.RegisterClient(ctx, registry.ClientConfig{StorageName: "file", Writers: 1})
	require.NoError(t, err)
	_, err = client.RegisterClient(ctx, registry.ClientConfig{StorageName: "file", Writers: 1})
	require.Error(t, err)
	require.Equal(t, int64(1), client.Stats().Errors)
	r.stop(t)
}

func TestNewServerRejectsBadThreshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds = []string{"latency is fine"}
	_, err := newServer(context.Background(), cfg, zaptest.NewLogger(t), io.Discard)
	require.Error(t, err)
	require.Contains(t, err.Error(), "thresholds")
}

func TestRunHelpAndValidation(t *testing.T) {
	require.NoError(t, run([]string{"--help"}))

	err := run([]string{"--queue-entries=0"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "queue entries")
}
