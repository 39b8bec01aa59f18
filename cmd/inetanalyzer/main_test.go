package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inetanalyzer/agent/internal/collector"
	"github.com/inetanalyzer/agent/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")

	out, err := execute(t, "--config", path, "init", "--monitor-id", "mon-1", "--config-url", "https://cfg.example.com/c.json")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "mon-1", cfg.Client.MonitorID)
	assert.Equal(t, []string{"https://cfg.example.com/c.json"}, cfg.Client.ConfigURLs)
	assert.Equal(t, config.DefaultProbeTimeout, cfg.Probe.Timeout)

	_, err = execute(t, "--config", path, "init")
	assert.True(t, errors.Is(err, config.ErrConfigExists), "got %v", err)

	_, err = execute(t, "--config", path, "init", "--force")
	require.NoError(t, err)
}

func TestExplicitMissingConfigFails(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "status")
	require.Error(t, err)
}

func TestRunRequiresMonitorID(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, config.Write(cfgPath, config.Default(), false))

	_, err := execute(t, "--config", cfgPath, "run", "--config-url", "http://127.0.0.1:1/c.json")
	assert.True(t, errors.Is(err, config.ErrInvalidConfig), "got %v", err)
}

func TestSamplePrintsEndpoints(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, config.Write(cfgPath, config.Default(), false))
	docPath := writeFile(t, dir, "config.json", `{"n":1,"r":["c.example.com/r.gif"],"e":[
		{"m":1,"w":1,"e":"a.example.com"},
		{"m":32,"w":5,"e":"dns.example.com"}
	]}`)

	out, err := execute(t, "--config", cfgPath, "sample", docPath, "--seed", "7")
	require.NoError(t, err)

	var got sampleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, 1, got.Dropped)
	assert.Equal(t, []string{"c.example.com/r.gif"}, got.UploadEndpoints)
	require.Len(t, got.Sampled, 1)
	assert.Equal(t, "a.example.com", got.Sampled[0].Host)
}

func TestSampleVerifiesSignature(t *testing.T) {
	dir := t.TempDir()
	pub, err := os.ReadFile("../../internal/verify/testdata/test.pub")
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Verify.PublicKey = string(pub)
	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, config.Write(cfgPath, cfg, false))

	doc := "../../internal/verify/testdata/config.json"
	_, err = execute(t, "--config", cfgPath, "sample", doc, "--signature", doc+".minisig")
	require.NoError(t, err)

	tampered := writeFile(t, dir, "config.json", `{"n":9,"r":[],"e":[]}`)
	_, err = execute(t, "--config", cfgPath, "sample", tampered, "--signature", doc+".minisig")
	require.Error(t, err)
}

func TestRunDocumentUploadsAndSavesState(t *testing.T) {
	srv := collector.New(collector.Config{MachineName: "edge-1"}, collector.Dependencies{})
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	host := strings.TrimPrefix(ts.URL, "http://")
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")
	cfg := config.Default()
	cfg.Run.StateDir = stateDir
	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, config.Write(cfgPath, cfg, false))
	docPath := writeFile(t, dir, "config.json",
		fmt.Sprintf(`{"n":1,"r":[%q],"e":[{"m":2,"w":1,"e":%q}]}`, host+"/r.gif", host))

	out, err := execute(t, "--config", cfgPath, "run",
		"--monitor-id", "mon-cli",
		"--tag", "lab",
		"--document", docPath,
		"--upload-scheme", "http://",
		"--seed", "3",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "uploaded 2 items")

	reports := srv.Reports().List(0)
	require.Len(t, reports, 1)
	assert.Equal(t, "mon-cli", reports[0].MonitorID)
	assert.Equal(t, "lab", reports[0].Tag)
	require.Len(t, reports[0].Data, 2)
	assert.Equal(t, "edge-1", reports[0].Data[0].Mn)

	state, err := config.LoadState(context.Background(), stateDir)
	require.NoError(t, err)
	assert.Equal(t, reports[0].RunID, state.RunID)
	assert.Equal(t, 1, state.Sampled)
	assert.Equal(t, 2, state.Items)
	assert.Equal(t, 1, state.Runs)
	assert.Empty(t, state.LastError)

	out, err = execute(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, state.RunID)
	assert.Contains(t, out, ts.URL+"/r.gif?MonitorId=mon-cli")
}
