package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/transactions-ai/internal/config"
	"github.com/seanankenbruck/transactions-ai/internal/processor"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"LLM_PROVIDER":         "none",
		"REDIS_ENABLED":        "false",
		"HISTORY_ENABLED":      "false",
		"DATASET_DRIVER":       "duckdb",
		"DATASET_PARQUET_PATH": "testdata/transactions.parquet",
	}
	for k, v := range env {
		base[k] = v
	}
	for k, v := range base {
		t.Setenv(k, v)
	}
	cfg, err := config.NewLoader(config.NewEnvProvider()).Load(context.Background())
	require.NoError(t, err)
	return cfg
}

// TestBuild_Minimal tests a build with every optional service disabled
func TestBuild_Minimal(t *testing.T) {
	var logs bytes.Buffer
	a, err := Build(context.Background(), loadConfig(t, nil), "txnq-test", "test", WithLogOutput(&logs))
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.LLMEnabled)
	assert.Contains(t, logs.String(), "SQL generation is disabled")
	require.Len(t, a.Connections, 1)
	assert.Equal(t, "duckdb", a.Connections[0].Driver)
	assert.Equal(t, "testdata/transactions.parquet", a.Connections[0].URI)
	assert.Nil(t, a.Processor.History)
	assert.False(t, a.Auth.SessionsEnabled())

	// Translation needs an LLM; the pipeline reports it instead of panicking
	resp, err := a.Processor.ProcessQuery(context.Background(), &processor.QueryRequest{Query: "total by bank"})
	require.Error(t, err)
	require.NotNil(t, resp.Error)
}

// TestBuild_WithServices tests the LLM and Redis wiring
func TestBuild_WithServices(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, map[string]string{
		"LLM_PROVIDER":   "openai",
		"OPENAI_API_KEY": "sk-test",
		"REDIS_ENABLED":  "true",
		"REDIS_ADDR":     mr.Addr(),
	})

	a, err := Build(context.Background(), cfg, "txnq-test", "test", WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.True(t, a.LLMEnabled)
	assert.True(t, a.Auth.SessionsEnabled())

	a.Close()
	assert.Empty(t, a.closers)
}

// TestBuild_BadConnectionsFile tests that a broken connections file fails the build
func TestBuild_BadConnectionsFile(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"DATASETS_FILE": "testdata/missing.yaml"})
	_, err := Build(context.Background(), cfg, "txnq-test", "test", WithLogOutput(&bytes.Buffer{}))
	assert.Error(t, err)
}
