package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedlens/feedlens/pkg/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
sources:
  - name: vscode-reddit
    kind: reddit
    enabled: true
    subreddit: vscode
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "file:feedlens.db?cache=shared&mode=rwc&_txlock=immediate", cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2*time.Minute, cfg.Collection.SourceTimeout)
	assert.Equal(t, 8, cfg.Collection.MaxWorkers)
	assert.Equal(t, 3, cfg.Collection.FetchRetries)
	assert.InDelta(t, 0.7, cfg.Collection.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.05, cfg.Classify.MinScore, 1e-9)
}

func TestLoad_FullConfig(t *testing.T) {
	content := `
server:
  listen: ":9090"
  timeout: 45s
database:
  dsn: "file:test.db?mode=rwc"
collection:
  source_timeout: 1m
  max_workers: 4
  similarity_threshold: 0.8
classify:
  min_score: 0.2
sources:
  - name: vscode-reddit
    kind: reddit
    enabled: true
    subreddit: vscode
  - name: cli-issues
    kind: github
    enabled: true
    owner: example
    repo: cli
  - name: backlog
    kind: ado
    enabled: false
    org_url: https://dev.azure.com/example
    project: product
    parent_work_id: "1234"
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, 45*time.Second, cfg.Server.Timeout)
	assert.Equal(t, time.Minute, cfg.Collection.SourceTimeout)
	assert.Equal(t, 4, cfg.Collection.MaxWorkers)
	assert.InDelta(t, 0.8, cfg.Collection.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.2, cfg.Classify.MinScore, 1e-9)
	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, domain.SourceGitHub, cfg.Sources[1].Kind)

	enabled := cfg.EnabledSources()
	require.Len(t, enabled, 2)
	assert.Equal(t, "vscode-reddit", enabled[0].Name)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_GH_TOKEN", "secret-token")
	content := `
auth:
  github_token: ${TEST_GH_TOKEN}
sources:
  - name: gh
    kind: github
    enabled: true
    owner: o
    repo: r
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.Auth.GitHubToken)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "no sources",
			content: "server:\n  listen: ':8080'\n",
			errMsg:  "at least one source",
		},
		{
			name: "reddit without subreddit",
			content: `
sources:
  - name: r
    kind: reddit
    enabled: true
`,
			errMsg: "subreddit is required",
		},
		{
			name: "github without repo",
			content: `
sources:
  - name: gh
    kind: github
    enabled: true
    owner: o
`,
			errMsg: "owner and repo are required",
		},
		{
			name: "unknown kind",
			content: `
sources:
  - name: x
    kind: carrier-pigeon
    enabled: true
`,
			errMsg: "unknown kind",
		},
		{
			name: "duplicate source names",
			content: `
sources:
  - name: dup
    kind: reddit
    enabled: true
    subreddit: a
  - name: dup
    kind: reddit
    enabled: true
    subreddit: b
`,
			errMsg: "duplicate source name",
		},
		{
			name: "similarity threshold out of range",
			content: `
collection:
  similarity_threshold: 1.5
sources:
  - name: r
    kind: reddit
    enabled: true
    subreddit: a
`,
			errMsg: "similarity_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema()
	require.NoError(t, err)
	assert.NotNil(t, schema)
}
