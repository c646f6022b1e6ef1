package logger

import (
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, log.WarnLevel, parseLevel(" warn "))
	assert.Equal(t, log.InfoLevel, parseLevel("chatty"))
	assert.Equal(t, log.InfoLevel, parseLevel(""))
}

func TestNew_WithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "agent.log")
	l := New("error", file)

	assert.Equal(t, log.ErrorLevel, l.GetLevel())
	l.Error("boom")
	assert.FileExists(t, file)
}
