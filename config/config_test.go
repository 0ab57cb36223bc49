package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/reglet-dev/reactor-sdk/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "reactor", c.AppID)
	assert.Equal(t, "JSC", c.Engine.Default)
	assert.True(t, c.Engine.MainProcessScriptSide)
	assert.False(t, c.Engine.ForceMainProcess)
	assert.Equal(t, []string{"JSC", "QJS"}, c.Engine.Supported)
	assert.Equal(t, "ui", c.Loopers.UI)
	assert.Equal(t, "script", c.Loopers.Script)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_id: shop
log_level: debug
engine:
  default: QJS
  switches:
    QJS: true
    JSC: false
  enable_url_data: '{"a.js":"QJS"}'
  force_main_process: true
  snapshot_path: /tmp/engine.yaml
loopers:
  script: js
`), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "shop", c.AppID)
	assert.Equal(t, slog.LevelDebug, c.Level())
	assert.Equal(t, "QJS", c.Engine.Default)
	// viper lower-cases map keys
	assert.Equal(t, map[string]bool{"qjs": true, "jsc": false}, c.Engine.Switches)
	assert.Equal(t, `{"a.js":"QJS"}`, c.Engine.EnableURLData)
	assert.True(t, c.Engine.ForceMainProcess)
	assert.True(t, c.Engine.MainProcessScriptSide)
	assert.Equal(t, "/tmp/engine.yaml", c.Engine.SnapshotPath)
	assert.Equal(t, "js", c.Loopers.Script)
	assert.Equal(t, "ui", c.Loopers.UI)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("REACTOR_APP_ID", "from-env")
	t.Setenv("REACTOR_ENGINE_DEFAULT", "QJSBin")

	c, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.AppID)
	assert.Equal(t, "QJSBin", c.Engine.Default)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Level(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, config.Config{LogLevel: "WARN"}.Level())
	assert.Equal(t, slog.LevelError, config.Config{LogLevel: "error"}.Level())
	assert.Equal(t, slog.LevelInfo, config.Config{LogLevel: "verbose"}.Level())
}
