package custom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadByPathBasename(t *testing.T) {
	cmd, err := Load("/opt/plugins/hmget_batch.so", "")
	require.NoError(t, err)
	assert.NotNil(t, cmd)

	cmd, err = Load("set_default", "")
	require.NoError(t, err)
	assert.NotNil(t, cmd)
}

func TestLoadUnknownCommand(t *testing.T) {
	_, err := Load("plugins/no_such_command.py", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_command")
	assert.Contains(t, err.Error(), "hmget_batch")
}

func TestHMGetBatchArgs(t *testing.T) {
	cmd := &hmgetBatch{}
	require.NoError(t, cmd.Init("batch=10"))
	assert.Len(t, cmd.keys, 10)
	assert.Len(t, cmd.fields, 10)

	require.NoError(t, cmd.Init(""))
	assert.Len(t, cmd.keys, 500)
}

func TestHMGetBatchKeySizes(t *testing.T) {
	cmd := &hmgetBatch{}
	require.NoError(t, cmd.Init("batch=2000"))
	for _, k := range cmd.keys {
		assert.LessOrEqual(t, len(k), 10)
	}
	for _, f := range cmd.fields {
		assert.LessOrEqual(t, len(f), 8)
	}
}

func TestHMGetBatchBadArgs(t *testing.T) {
	cmd := &hmgetBatch{}
	assert.Error(t, cmd.Init("batch=0"))
	assert.Error(t, cmd.Init("batch=x"))
	assert.Error(t, cmd.Init("bogus=1"))
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	assert.Contains(t, names, "hmget_batch")
	assert.Contains(t, names, "set_default")
	assert.IsIncreasing(t, names)
}
