package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
provider:
  finnhub:
    api_key: test-key
dataset:
  symbols: [AAPL, MSFT]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 30, c.Labeling.Horizon)
	require.Len(t, c.Labeling.Thresholds, 3)
	assert.Equal(t, "Fair", c.Labeling.Thresholds[0].Label)
	assert.Equal(t, []int{10, 25, 50}, c.Features.Periods)
	assert.Len(t, c.Features.PeriodIndicators, 28)
	assert.Len(t, c.Features.PlainIndicators, 12)
	assert.True(t, c.VolumeEnabled())
	assert.Equal(t, time.Second, c.Provider.CallInterval)
	assert.Equal(t, 0.25, c.Training.TestSize)
	assert.Equal(t, int64(42069), c.Training.Seed)
	assert.Equal(t, []int{116, 100, 80, 80, 90, 50}, c.Training.HiddenLayers)
	assert.Equal(t, "exit0", c.REPL.ExitToken)
	assert.Equal(t, "mean", c.Dataset.MissingPolicy)

	start, end := c.DatasetWindow()
	assert.Equal(t, "2011-12-31", start.Format("2006-01-02"))
	assert.Equal(t, "2021-03-19", end.Format("2006-01-02"))
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(minimal + `
labeling:
  horizon: 5
  thresholds:
    - {threshold: 0.02, label: Slight}
features:
  periods: [7]
  include_volume: false
`))
	require.NoError(t, err)
	assert.Equal(t, 5, c.Labeling.Horizon)
	assert.Equal(t, []Threshold{{Threshold: 0.02, Label: "Slight"}}, c.Labeling.Thresholds)
	assert.Equal(t, []int{7}, c.Features.Periods)
	assert.False(t, c.VolumeEnabled())
}

func TestParseRejectsBadThresholds(t *testing.T) {
	_, err := Parse([]byte(minimal + `
labeling:
  thresholds:
    - {threshold: 0.10, label: Moderate}
    - {threshold: 0.04, label: Fair}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")

	_, err = Parse([]byte(minimal + `
labeling:
  thresholds:
    - {threshold: 1.5, label: Huge}
`))
	require.Error(t, err)
}

func TestParseRequiresAPIKeyForFinnhub(t *testing.T) {
	_, err := Parse([]byte("dataset:\n  symbols: [AAPL]\n"))
	require.Error(t, err)

	_, err = Parse([]byte("provider:\n  type: local\ndataset:\n  symbols: [AAPL]\n"))
	require.NoError(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	t.Setenv("FINNHUB_API_KEY", "from-env")
	t.Setenv("SYMBOLS", "IBM,ORCL")
	t.Setenv("MODEL_DIR", "/tmp/model")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Provider.Finnhub.APIKey)
	assert.Equal(t, []string{"IBM", "ORCL"}, c.Dataset.Symbols)
	assert.Equal(t, "/tmp/model", c.Training.ModelDir)
}

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "sample")
	c, err := LoadWithEnv(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	require.Len(t, c.Market.Indices, 4)
	assert.Equal(t, "Russell2000", c.Market.Indices[3].Name)
	assert.False(t, c.Market.Indices[0].HasVolume)
	assert.Equal(t, "sqlite", c.Recorder.Type)
	assert.Equal(t, "data/candles", c.Provider.Local.Dir)
}

func TestCORSDefaultsOnAndCanBeDisabled(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)
	assert.True(t, c.CORSEnabled())

	c, err = Parse([]byte(minimal + "server:\n  cors: false\n"))
	require.NoError(t, err)
	assert.False(t, c.CORSEnabled())
}
