package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, []string{filepath.Join("Scripts", "Common.py"), filepath.Join("Scripts", "Sequencer.py")}, cfg.Pipeline.Inputs)
	assert.Equal(t, "Out", cfg.Pipeline.OutputDir)
	assert.Equal(t, "Sequencer.py", cfg.Pipeline.Artifact)
	assert.Empty(t, cfg.Pipeline.ExternalSink)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("SINK_DIR", "/opt/app/scripts")
	t.Setenv(EnvExternalSink, "")
	require.NoError(t, os.Unsetenv(EnvExternalSink))

	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	writeFile(t, path, `
pipeline:
  inputs: [src/a.js, src/b.js]
  output_dir: dist
  artifact: bundle.js
  external_sink: ${SINK_DIR}
logging:
  level: DEBUG
watch:
  poll: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Pipeline.Root)
	assert.Equal(t, []string{filepath.Join(dir, "src/a.js"), filepath.Join(dir, "src/b.js")}, cfg.InputPaths())
	assert.Equal(t, filepath.Join(dir, "dist", "bundle.js"), cfg.ArtifactPath())
	assert.Equal(t, "/opt/app/scripts", cfg.ExternalSinkDir())
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Watch.Poll)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryConfig))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	writeFile(t, path, "pipeline: [unterminated")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryConfig))
}

func TestLoad_EnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHistory, "from-process.db")
	writeFile(t, filepath.Join(dir, ".env"), "SEQBUILD_HISTORY=from-file.db\nSEQBUILD_TEST_ONLY=loaded\n")
	writeFile(t, filepath.Join(dir, DefaultFileName), "pipeline:\n  artifact: x.py\n")
	t.Cleanup(func() { _ = os.Unsetenv("SEQBUILD_TEST_ONLY") })

	cfg, err := Load(filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)

	assert.Equal(t, "from-process.db", cfg.History.Path)
	assert.Equal(t, "loaded", os.Getenv("SEQBUILD_TEST_ONLY"))
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("no file uses defaults rooted at dir", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := LoadOrDefault("", dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "Out", "Sequencer.py"), cfg.ArtifactPath())
	})

	t.Run("default file in root is picked up", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, DefaultFileName), "pipeline:\n  artifact: Custom.py\n")
		cfg, err := LoadOrDefault("", dir)
		require.NoError(t, err)
		assert.Equal(t, "Custom.py", cfg.Pipeline.Artifact)
	})

	t.Run("explicit missing file is an error", func(t *testing.T) {
		_, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
		require.Error(t, err)
	})
}

func TestApplyEnv_ExternalSinkOverride(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.ExternalSink = "/from/config"

	t.Setenv(EnvExternalSink, "/from/env")
	cfg.ApplyEnv()
	assert.Equal(t, "/from/env", cfg.ExternalSinkDir())

	t.Setenv(EnvExternalSink, "")
	cfg.ApplyEnv()
	assert.Empty(t, cfg.ExternalSinkDir())
}

func TestExternalSinkDir_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Default()
	cfg.Pipeline.ExternalSink = "~/maya/scripts"
	assert.Equal(t, filepath.Join(home, "maya", "scripts"), cfg.ExternalSinkDir())
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "second init without force must fail")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Sequencer.py", cfg.Pipeline.Artifact)
	assert.NotEmpty(t, cfg.Pipeline.ExternalSink)
}
