package cannm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerStartAndTick(t *testing.T) {
	var tm timer
	require.False(t, tm.isRunning())

	tm.start(3)
	assert.True(t, tm.isRunning())

	assert.False(t, tm.tick())
	assert.False(t, tm.tick())
	assert.True(t, tm.tick(), "timer should expire on the tick that reaches zero")
	assert.False(t, tm.isRunning(), "an expired timer auto-stops")
}

func TestTimerStopPrecludesLaterFire(t *testing.T) {
	var tm timer
	tm.start(1)
	tm.stop()
	assert.False(t, tm.tick(), "a stopped timer must never fire")
}

func TestTimerTickWhenNotRunningIsNoop(t *testing.T) {
	var tm timer
	assert.False(t, tm.tick())
}

func TestTimerRestartDiscardsPriorCountdown(t *testing.T) {
	var tm timer
	tm.start(100)
	tm.start(2)
	assert.False(t, tm.tick())
	assert.True(t, tm.tick())
}
