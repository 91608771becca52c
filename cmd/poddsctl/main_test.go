package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podds/internal/config"
	"podds/pkg/podds"
)

// captureStdout runs the command and returns what it printed.
func captureStdout(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	defer func() { stdout = orig }()
	err := run(context.Background(), args)
	return buf.String(), err
}

func TestRunCommandWritesArtifacts(t *testing.T) {
	runsDir := filepath.Join(t.TempDir(), "runs")

	out, err := captureStdout(t, "run",
		"--store", "memory",
		"--runs-dir", runsDir,
		"--ticks", "20",
		"--seed", "5",
		"--init-podds", "3",
		"--log-level", "error",
		"--json",
	)
	require.NoError(t, err)

	var summary podds.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, int64(5), summary.Seed)
	assert.Equal(t, 20, summary.Ticks)
	assert.Equal(t, "ticks", summary.StopReason)
	for _, name := range []string{"config.json", "summary.json", "tick_stats.csv", "births.csv", "deaths.csv", "survivors.json"} {
		_, err := os.Stat(filepath.Join(runsDir, summary.RunID, name))
		assert.NoError(t, err, name)
	}

	out, err = captureStdout(t, "runs", "--store", "memory", "--runs-dir", runsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "run_id="+summary.RunID)
	assert.Contains(t, out, "init_podds=3")

	out, err = captureStdout(t, "stats", "--store", "memory", "--runs-dir", runsDir, "--latest", "--every", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "run_id="+summary.RunID)
	assert.Contains(t, out, "tick=1 ")
	assert.Contains(t, out, "tick=11 ")
	assert.Contains(t, out, "tick=20 ")

	_, err = captureStdout(t, "deaths", "--store", "memory", "--runs-dir", runsDir, "--run-id", summary.RunID)
	require.NoError(t, err)

	_, err = captureStdout(t, "lineage", "--store", "memory", "--runs-dir", runsDir, "--latest")
	require.NoError(t, err)

	exportDir := t.TempDir()
	out, err = captureStdout(t, "export", "--store", "memory", "--runs-dir", runsDir, "--latest", "--out", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported run_id="+summary.RunID)
	_, err = os.Stat(filepath.Join(exportDir, summary.RunID, "tick_stats.csv"))
	assert.NoError(t, err)
}

func TestInitWritesSettingsThatRunAccepts(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "podds.yaml")
	runsDir := filepath.Join(dir, "runs")

	out, err := captureStdout(t, "init", "--config", configPath, "--store", "memory", "--runs-dir", runsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "initialized config="+configPath)

	settings, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "memory", settings.Run.Store)
	assert.Equal(t, runsDir, settings.Run.OutDir)

	_, err = captureStdout(t, "init", "--config", configPath, "--store", "memory")
	assert.ErrorContains(t, err, "already exists")

	out, err = captureStdout(t, "run", "--config", configPath, "--ticks", "3", "--seed", "9", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "ticks=3 ")
	assert.Contains(t, out, "seed=9 ")

	entries, err := os.ReadDir(runsDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRunStartPausedAutoContinues(t *testing.T) {
	runsDir := t.TempDir()
	out, err := captureStdout(t, "run",
		"--store", "memory",
		"--runs-dir", runsDir,
		"--ticks", "5",
		"--seed", "2",
		"--init-podds", "3",
		"--start-paused",
		"--auto-continue-ms", "10",
		"--log-level", "error",
		"--json",
	)
	require.NoError(t, err)

	var summary podds.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "ticks", summary.StopReason)
	assert.Equal(t, 5, summary.Ticks)

	data, err := os.ReadFile(filepath.Join(runsDir, summary.RunID, "config.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"start_paused": true`)
	assert.Contains(t, string(data), `"auto_continue_after_ms": 10`)
}

func TestCommandErrors(t *testing.T) {
	_, err := captureStdout(t)
	assert.ErrorContains(t, err, "missing command")

	_, err = captureStdout(t, "evolve")
	assert.ErrorContains(t, err, "unknown command: evolve")

	_, err = captureStdout(t, "lineage", "--store", "memory")
	assert.ErrorContains(t, err, "lineage requires --run-id or --latest")

	_, err = captureStdout(t, "deaths", "--store", "memory", "--run-id", "a", "--latest")
	assert.ErrorContains(t, err, "not both")

	_, err = captureStdout(t, "run", "--store", "memory", "--runs-dir", t.TempDir(), "--start-paused")
	assert.ErrorContains(t, err, "--start-paused requires --auto-continue-ms")

	_, err = captureStdout(t, "run", "--config", "podds.yaml", "--hz", "60")
	assert.ErrorContains(t, err, "--hz cannot be combined")

	_, err = captureStdout(t, "run", "--store", "memory", "--runs-dir", t.TempDir(), "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown log level")

	_, err = captureStdout(t, "stats", "--store", "memory", "--runs-dir", t.TempDir(), "--run-id", "ghost")
	assert.ErrorIs(t, err, podds.ErrRunNotFound)

	out, err := captureStdout(t, "runs", "--store", "memory", "--runs-dir", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "no runs found\n", out)
}
