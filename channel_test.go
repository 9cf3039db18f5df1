package cannm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every frame handed to TransmitFrame, standing in for
// the lower-layer CAN Interface in isolation.
type fakeTransport struct {
	sent [][]byte
	fail bool
}

func (f *fakeTransport) TransmitFrame(pduID int, data []byte) error {
	if f.fail {
		return assert.AnError
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

// fakeNotifier records which callbacks fired and how many times, standing in
// for the upper-layer Network Management orchestrator.
type fakeNotifier struct {
	noopNotifier
	busSleep         int
	prepareBusSleep  int
	networkMode      int
	networkStart     int
	remoteCancel     int
	remoteSleepInd   int
	txTimeout        int
	stateChanges     []State
}

func (f *fakeNotifier) BusSleepMode(int)           { f.busSleep++ }
func (f *fakeNotifier) PrepareBusSleepMode(int)     { f.prepareBusSleep++ }
func (f *fakeNotifier) NetworkMode(int)             { f.networkMode++ }
func (f *fakeNotifier) NetworkStartIndication(int)  { f.networkStart++ }
func (f *fakeNotifier) RemoteSleepCancellation(int) { f.remoteCancel++ }
func (f *fakeNotifier) RemoteSleepInd(int)          { f.remoteSleepInd++ }
func (f *fakeNotifier) TxTimeoutException(int)      { f.txTimeout++ }
func (f *fakeNotifier) StateChangeNotification(ch int, from, to State) {
	f.stateChanges = append(f.stateChanges, to)
}

const testPeriod = time.Millisecond

func scenarioConfig() *ChannelConfig {
	return &ChannelConfig{
		Channel:                 0,
		NodeID:                  0x10,
		PduNidPosition:          0,
		PduCbvPosition:          1,
		PduLength:               8,
		Tx:                      TxBuffer{PduID: 100, Length: 8},
		Rx:                      []RxBuffer{{PduID: 200, Length: 8}},
		TimeoutTime:             100 * testPeriod,
		MsgCycleTime:            500 * testPeriod,
		MsgCycleOffset:          5 * testPeriod,
		RepeatMessageTime:       1000 * testPeriod,
		WaitBusSleepTime:        1000 * testPeriod,
		RemoteSleepIndTime:      2000 * testPeriod,
		ImmediateNmCycleTime:    10 * testPeriod,
		MsgReducedTime:          50 * testPeriod,
		NodeDetectionEnabled:    true,
		ActiveWakeupBitEnabled:  true,
	}
}

func newTestDriver(t *testing.T, global GlobalConfig, cfg *ChannelConfig) (*Driver, *fakeTransport, *fakeNotifier) {
	t.Helper()
	global.MainFunctionPeriod = testPeriod
	transport := &fakeTransport{}
	notifier := &fakeNotifier{}
	d := New()
	require.NoError(t, d.Init(global, []*ChannelConfig{cfg}, transport, notifier, nil))
	return d, transport, notifier
}

// Cold start: BusSleep -> NetworkRequest -> RepeatMessage, with the
// message-cycle offset and a NetworkMode notification fired immediately.
func TestScenarioColdStart(t *testing.T) {
	d, transport, notifier := newTestDriver(t, GlobalConfig{StateChangeIndEnabled: true}, scenarioConfig())

	state, mode, err := d.GetState(0)
	require.NoError(t, err)
	assert.Equal(t, StateBusSleep, state)
	assert.Equal(t, ModeBusSleep, mode)

	require.NoError(t, d.NetworkRequest(0))

	state, mode, err = d.GetState(0)
	require.NoError(t, err)
	assert.Equal(t, StateRepeatMessage, state)
	assert.Equal(t, ModeNetwork, mode)
	assert.Equal(t, 1, notifier.networkMode)

	for i := 0; i < 5; i++ {
		d.MainFunction()
	}
	require.Len(t, transport.sent, 1, "first frame goes out after msg_cycle_offset ticks")
}

// Active wake: the CBV active-wakeup bit is set on the outgoing frame as
// soon as NetworkRequest fires from BusSleep.
func TestScenarioActiveWake(t *testing.T) {
	cfg := scenarioConfig()
	d, transport, _ := newTestDriver(t, GlobalConfig{}, cfg)

	require.NoError(t, d.NetworkRequest(0))
	for i := 0; i < 5; i++ {
		d.MainFunction()
	}
	require.Len(t, transport.sent, 1)
	assert.True(t, readCBVBit(cfg, transport.sent[0], BitActiveWakeup))
}

// Repeat -> NormalOperation: once repeat_message_time elapses with the
// network still requested, the channel moves on to NormalOperation.
func TestScenarioRepeatToNormalOperation(t *testing.T) {
	d, _, notifier := newTestDriver(t, GlobalConfig{StateChangeIndEnabled: true}, scenarioConfig())

	require.NoError(t, d.NetworkRequest(0))
	for i := 0; i < 1000; i++ {
		d.MainFunction()
	}

	state, _, err := d.GetState(0)
	require.NoError(t, err)
	assert.Equal(t, StateNormalOperation, state)
	assert.Contains(t, notifier.stateChanges, StateNormalOperation)
}

// Release -> Sleep: releasing the network from NormalOperation drops to
// ReadySleep, then PrepareBusSleep once timeout_time elapses, then BusSleep
// once wait_bus_sleep_time elapses.
func TestScenarioReleaseToSleep(t *testing.T) {
	d, _, notifier := newTestDriver(t, GlobalConfig{StateChangeIndEnabled: true}, scenarioConfig())

	require.NoError(t, d.NetworkRequest(0))
	for i := 0; i < 1000; i++ {
		d.MainFunction()
	}
	state, _, err := d.GetState(0)
	require.NoError(t, err)
	require.Equal(t, StateNormalOperation, state)

	require.NoError(t, d.NetworkRelease(0))
	state, _, err = d.GetState(0)
	require.NoError(t, err)
	assert.Equal(t, StateReadySleep, state)

	for i := 0; i < 100; i++ {
		d.MainFunction()
	}
	state, _, err = d.GetState(0)
	require.NoError(t, err)
	assert.Equal(t, StatePrepareBusSleep, state)
	assert.Equal(t, 1, notifier.prepareBusSleep)

	for i := 0; i < 1000; i++ {
		d.MainFunction()
	}
	state, mode, err := d.GetState(0)
	require.NoError(t, err)
	assert.Equal(t, StateBusSleep, state)
	assert.Equal(t, ModeBusSleep, mode)
	assert.Equal(t, 1, notifier.busSleep)
}

// RMR round-trip: RepeatMessageRequest from NormalOperation forces the CBV
// bit and re-enters RepeatMessage.
func TestScenarioRepeatMessageRequestRoundTrip(t *testing.T) {
	cfg := scenarioConfig()
	d, transport, _ := newTestDriver(t, GlobalConfig{}, cfg)

	require.NoError(t, d.NetworkRequest(0))
	for i := 0; i < 1000; i++ {
		d.MainFunction()
	}
	state, _, err := d.GetState(0)
	require.NoError(t, err)
	require.Equal(t, StateNormalOperation, state)

	require.NoError(t, d.RepeatMessageRequest(0))
	state, _, err = d.GetState(0)
	require.NoError(t, err)
	assert.Equal(t, StateRepeatMessage, state)

	transport.sent = nil
	for i := 0; i < 10; i++ {
		d.MainFunction()
	}
	require.NotEmpty(t, transport.sent)
	assert.True(t, readCBVBit(cfg, transport.sent[0], BitRepeatMessageRequest))
}

// Immediate-tx burst: with immediate_nm_transmissions configured, a cold
// NetworkRequest fires several frames back-to-back on the reduced cycle
// time rather than waiting for the normal message-cycle period.
func TestScenarioImmediateTxBurst(t *testing.T) {
	cfg := scenarioConfig()
	cfg.ImmediateNmTransmissions = 3
	d, transport, _ := newTestDriver(t, GlobalConfig{}, cfg)

	require.NoError(t, d.NetworkRequest(0))

	require.Len(t, transport.sent, 1, "startImmediateBurst sends synchronously before any tick")

	for i := 0; i < 40; i++ {
		d.MainFunction()
	}
	assert.GreaterOrEqual(t, len(transport.sent), 4, "burst plus the steady-state cycle should have sent several frames")
}

func TestTxConfirmationRestartsTimeout(t *testing.T) {
	d, _, _ := newTestDriver(t, GlobalConfig{}, scenarioConfig())
	require.NoError(t, d.NetworkRequest(0))
	for i := 0; i < 50; i++ {
		d.MainFunction()
	}
	require.NoError(t, d.TxConfirmation(100, true))
	assert.Equal(t, 100, d.byHandle[0].state.timeout.ticksLeft, "timeout restarted at timeout_time")
	state, _, err := d.GetState(0)
	require.NoError(t, err)
	assert.Equal(t, StateRepeatMessage, state)
}

func TestDeInitRequiresBusSleep(t *testing.T) {
	d, _, _ := newTestDriver(t, GlobalConfig{}, scenarioConfig())
	require.NoError(t, d.NetworkRequest(0))
	require.NoError(t, d.DeInit(), "DeInit is a silent no-op outside BusSleep")
	assert.Equal(t, StatusInit, d.Status())
}

func TestRxIndicationAdvancesRing(t *testing.T) {
	cfg := scenarioConfig()
	d, _, notifier := newTestDriver(t, GlobalConfig{PduRxIndicationEnabled: true}, cfg)

	frame := make([]byte, 8)
	frame[0] = 0x7
	require.NoError(t, d.RxIndication(200, frame))

	nid, err := d.GetNodeIdentifier(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x7), nid)
	_ = notifier
}
