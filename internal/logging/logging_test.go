package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TextLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger(DefaultConfig(), false, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("shown", "event", "cleanup")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "event=cleanup")
}

func TestNew_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "error"

	logger, _, err := newLogger(cfg, true, &buf)
	require.NoError(t, err)

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := newLogger(Config{Level: "info", Format: "json"}, false, &buf)
	require.NoError(t, err)

	logger.Info("event completed", "event", "rollup")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "event completed", record["msg"])
	assert.Equal(t, "rollup", record["event"])
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlcron.log")
	logger, closer, err := New(Config{Level: "info", Format: "text", File: path}, false)
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "to file"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Level: "WARN", Format: "JSON"}.Validate())
	assert.Error(t, Config{Level: "trace", Format: "text"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
}
