package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"ERROR": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"loud":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestModuleTagsEntries(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := Module(zap.New(core), "dashboard")
	log.Info("refresh done")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "dashboard", entries[0].ContextMap()["module"])
	}
}

func TestModuleNilIsNop(t *testing.T) {
	log := Module(nil, "x")
	assert.NotNil(t, log)
	log.Info("dropped")
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log := New(path, "debug", true)
	log.Info("hello")
	_ = log.Sync()
	assert.FileExists(t, path)
}
