package rate

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicyFixed(t *testing.T) {
	p, warnings, err := NewPolicy(500, 0, 0, 0, 0, "linear", 0)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, Fixed, p.Kind)
	assert.Equal(t, 500, p.QPS)
}

func TestNewPolicyNone(t *testing.T) {
	p, _, err := NewPolicy(0, 0, 0, 0, 0, "linear", 0)
	require.NoError(t, err)
	assert.Equal(t, None, p.Kind)
}

func TestNewPolicyFixedExclusiveWithDynamic(t *testing.T) {
	_, _, err := NewPolicy(500, 100, 1000, 100, 1, "linear", 0)
	assert.Error(t, err)
}

func TestNewPolicyLinearSignMismatch(t *testing.T) {
	_, _, err := NewPolicy(0, 100, 1000, -100, 1, "linear", 0)
	assert.Error(t, err)

	_, _, err = NewPolicy(0, 1000, 100, 100, 1, "linear", 0)
	assert.Error(t, err)
}

func TestNewPolicyStartDefaultsToEnd(t *testing.T) {
	p, warnings, err := NewPolicy(0, 0, 1000, 100, 1, "linear", 0)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, 1000, p.StartQPS)
}

func TestNewPolicyExponentialRequiresFactor(t *testing.T) {
	_, _, err := NewPolicy(0, 100, 1600, 0, 1, "exponential", 0)
	assert.Error(t, err)
}

func TestNewPolicyExponentialRampDownWarns(t *testing.T) {
	_, warnings, err := NewPolicy(0, 1000, 100, 0, 1, "exponential", 0.5)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestPolicyDivide(t *testing.T) {
	p, _, err := NewPolicy(0, 100, 1000, 100, 1, "linear", 0)
	require.NoError(t, err)

	d := p.Divide(4)
	assert.Equal(t, 25, d.StartQPS)
	assert.Equal(t, 250, d.EndQPS)
	assert.Equal(t, 25, d.StepQPS)

	assert.Equal(t, p, p.Divide(1))
}

func TestAwaitNonePolicyImmediate(t *testing.T) {
	c := NewController(Policy{Kind: None}, clock.NewMock())
	for i := 0; i < 1000; i++ {
		require.NoError(t, c.Await(context.Background()))
	}
}

func TestAwaitFixedWithinBudgetImmediate(t *testing.T) {
	mock := clock.NewMock()
	c := NewController(Policy{Kind: Fixed, QPS: 100}, mock)

	for i := 0; i < 100; i++ {
		require.NoError(t, c.Await(context.Background()))
	}
}

func TestAwaitSleepsUntilNextSecond(t *testing.T) {
	mock := clock.NewMock()
	c := NewController(Policy{Kind: Fixed, QPS: 2}, mock)

	require.NoError(t, c.Await(context.Background()))
	require.NoError(t, c.Await(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Await(context.Background())
	}()
	advanceUntil(t, mock, done)
}

func TestAwaitCancellation(t *testing.T) {
	mock := clock.NewMock()
	c := NewController(Policy{Kind: Fixed, QPS: 1}, mock)
	require.NoError(t, c.Await(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Await(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not observe cancellation")
	}
}

func TestAwaitWindowResetsAfterSecond(t *testing.T) {
	mock := clock.NewMock()
	c := NewController(Policy{Kind: Fixed, QPS: 3}, mock)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Await(context.Background()))
	}
	mock.Add(1100 * time.Millisecond)
	// A fresh second: the budget is available again without sleeping.
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Await(context.Background()))
	}
}

func TestLinearRampSteps(t *testing.T) {
	mock := clock.NewMock()
	p, _, err := NewPolicy(0, 100, 1000, 100, 1, "linear", 0)
	require.NoError(t, err)
	c := NewController(p, mock)

	assert.Equal(t, 100, c.CurrentQPS())
	for k := 1; k <= 9; k++ {
		mock.Add(time.Second)
		require.NoError(t, c.Await(context.Background()))
		assert.Equal(t, 100+100*k, c.CurrentQPS(), "after %d intervals", k)
	}
	// Clamped at end from here on.
	mock.Add(time.Second)
	require.NoError(t, c.Await(context.Background()))
	assert.Equal(t, 1000, c.CurrentQPS())
}

func TestLinearRampDown(t *testing.T) {
	mock := clock.NewMock()
	p, _, err := NewPolicy(0, 1000, 100, -300, 1, "linear", 0)
	require.NoError(t, err)
	c := NewController(p, mock)

	want := []int{700, 400, 100, 100}
	for _, q := range want {
		mock.Add(time.Second)
		require.NoError(t, c.Await(context.Background()))
		assert.Equal(t, q, c.CurrentQPS())
	}
}

func TestExponentialRampDoubles(t *testing.T) {
	mock := clock.NewMock()
	p, _, err := NewPolicy(0, 100, 1600, 0, 1, "exponential", 2)
	require.NoError(t, err)
	c := NewController(p, mock)

	want := []int{200, 400, 800, 1600, 1600}
	for _, q := range want {
		mock.Add(time.Second)
		require.NoError(t, c.Await(context.Background()))
		assert.Equal(t, q, c.CurrentQPS())
	}
}

func TestExponentialRampDownClamped(t *testing.T) {
	mock := clock.NewMock()
	p, _, err := NewPolicy(0, 1000, 100, 0, 1, "exponential", 0.5)
	require.NoError(t, err)
	c := NewController(p, mock)

	want := []int{500, 250, 125, 100, 100}
	for _, q := range want {
		mock.Add(time.Second)
		require.NoError(t, c.Await(context.Background()))
		assert.Equal(t, q, c.CurrentQPS())
	}
}

// advanceUntil moves the mock clock forward in small steps until the
// goroutine under test finishes.
func advanceUntil(t *testing.T, mock *clock.Mock, done <-chan struct{}) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("timed out waiting for Await to return")
		default:
			mock.Add(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}
