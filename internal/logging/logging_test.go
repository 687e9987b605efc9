package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffInstallsNop(t *testing.T) {
	for _, level := range []string{"", "OFF", "off"} {
		log, err := New(level)
		require.NoError(t, err)
		// A nop logger has no sinks: no level is enabled.
		assert.Nil(t, log.Check(0, "msg"))
	}
}

func TestLevels(t *testing.T) {
	for _, level := range []string{"ERROR", "WARNING", "INFO", "DEBUG"} {
		log, err := New(level)
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}

func TestUnknownLevel(t *testing.T) {
	_, err := New("TRACE")
	assert.Error(t, err)
}
