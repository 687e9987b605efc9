package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, "127.0.0.1", c.Host)
	assert.Equal(t, 6379, c.Port)
	assert.Equal(t, 50, c.Clients)
	assert.Equal(t, 1, c.Threads)
	assert.Equal(t, int64(100000), c.Requests)
	assert.Equal(t, 3, c.DataSize)
	assert.Equal(t, CommandSet, c.Command)
	assert.Equal(t, "OFF", c.LogLevel)
}

func TestRampOptionsMustAppearTogether(t *testing.T) {
	c := Default()
	c.ClientsRampStart = 1
	c.ClientsRampEnd = 10
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c.ClientsPerRamp = 1
	c.ClientRampIntervalSec = 1
	require.NoError(t, c.Validate())
	assert.True(t, c.UseRamp())
}

func TestRampExclusiveWithClients(t *testing.T) {
	c := Default()
	c.Clients = 20
	c.ClientsRampStart = 1
	c.ClientsRampEnd = 10
	c.ClientsPerRamp = 1
	c.ClientRampIntervalSec = 1
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestRandomSequentialExclusive(t *testing.T) {
	c := Default()
	c.RandomKeyspace = 100
	c.SequentialKeyspace = 100
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestSequentialRandomStartRequiresSequential(t *testing.T) {
	c := Default()
	c.SequentialRandomStart = true
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c.SequentialKeyspace = 100
	require.NoError(t, c.Validate())
}

func TestFixedAndDynamicQPSExclusive(t *testing.T) {
	c := Default()
	c.QPS = 100
	c.StartQPS = 50
	c.EndQPS = 500
	c.QPSChangeIntervalSec = 1
	c.QPSChange = 50
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestDynamicQPSRequiresEndAndInterval(t *testing.T) {
	c := Default()
	c.StartQPS = 50
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestExponentialRequiresFactor(t *testing.T) {
	c := Default()
	c.StartQPS = 100
	c.EndQPS = 1600
	c.QPSChangeIntervalSec = 1
	c.QPSRampMode = "exponential"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c.QPSRampFactor = 2
	require.NoError(t, c.Validate())
}

func TestCustomRequiresFile(t *testing.T) {
	c := Default()
	c.Command = CommandCustom
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c.CustomCommandFile = "plugins/hmget_batch.so"
	require.NoError(t, c.Validate())
}

func TestUnknownCommandRejected(t *testing.T) {
	c := Default()
	c.Command = "del"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestBadLogLevelRejected(t *testing.T) {
	c := Default()
	c.LogLevel = "TRACE"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestProcessesParsing(t *testing.T) {
	c := Default()
	c.Processes = "abc"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c.Processes = "4"
	require.NoError(t, c.Validate())
	assert.Equal(t, 4, c.NumProcesses())

	c.Processes = "auto"
	require.NoError(t, c.Validate())
	assert.GreaterOrEqual(t, c.NumProcesses(), 1)

	c.SingleProcess = true
	assert.Equal(t, 1, c.NumProcesses())
}

func TestTimeouts(t *testing.T) {
	c := Default()
	assert.Zero(t, c.RequestTimeout())
	c.RequestTimeoutMs = -5
	assert.Zero(t, c.RequestTimeout())
	c.RequestTimeoutMs = 250
	assert.Equal(t, "250ms", c.RequestTimeout().String())
}
