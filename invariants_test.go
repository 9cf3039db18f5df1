package cannm

import (
	"testing"

	"pgregory.net/rapid"
)

// checkInvariants asserts spec.md §8's quiescent-point invariants against
// one channel's runtime state, all but the after-Init frame layout one,
// which TestNewInitializedFrame covers.
func checkInvariants(t *rapid.T, d *Driver, handle int) {
	ch := d.byHandle[handle]
	s := ch.state

	if s.mode != modeOf(s.state) {
		t.Fatalf("mode %s does not agree with state %s", s.mode, s.state)
	}

	if s.mode == ModeBusSleep {
		for name, tm := range map[string]*timer{
			"timeout": &s.timeout, "message_cycle": &s.messageCycle,
			"repeat_message": &s.repeatMessage, "wait_bus_sleep": &s.waitBusSleep,
			"remote_sleep_ind": &s.remoteSleepInd,
		} {
			if tm.isRunning() {
				t.Fatalf("in BusSleep, timer %s must be stopped", name)
			}
		}
	}

	if s.state == StatePrepareBusSleep {
		if !s.waitBusSleep.isRunning() {
			t.Fatalf("in PrepareBusSleep, wait_bus_sleep must be running")
		}
		if s.timeout.isRunning() || s.messageCycle.isRunning() || s.repeatMessage.isRunning() {
			t.Fatalf("in PrepareBusSleep, tx-related timers must be stopped")
		}
	}

	if s.txEnabled && s.mode != ModeNetwork {
		t.Fatalf("tx_enabled requires Network mode")
	}
	if s.state == StateReadySleep && s.txEnabled {
		t.Fatalf("tx_enabled must be false in ReadySleep")
	}

	if s.immediateTransmissions > 0 && s.state != StateRepeatMessage && s.state != StateNormalOperation {
		t.Fatalf("immediate_transmissions > 0 only valid in RepeatMessage/NormalOperation, got %s", s.state)
	}

	for name, tm := range map[string]*timer{
		"timeout": &s.timeout, "message_cycle": &s.messageCycle,
		"repeat_message": &s.repeatMessage, "wait_bus_sleep": &s.waitBusSleep,
		"remote_sleep_ind": &s.remoteSleepInd,
	} {
		if tm.ticksLeft < 0 {
			t.Fatalf("timer %s has negative time_left: %d", name, tm.ticksLeft)
		}
	}
}

// TestInvariantsHoldUnderRandomOperation drives a single channel through
// random sequences of public operations and MainFunction ticks, asserting
// spec.md §8's invariants hold after every step.
func TestInvariantsHoldUnderRandomOperation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := scenarioConfig()
		cfg.ImmediateNmTransmissions = rapid.IntRange(0, 3).Draw(rt, "immediateTx")
		global := GlobalConfig{
			MainFunctionPeriod:    testPeriod,
			StateChangeIndEnabled: true,
			RemoteSleepIndEnabled: true,
		}
		d := New()
		transport := &fakeTransport{}
		if err := d.Init(global, []*ChannelConfig{cfg}, transport, &fakeNotifier{}, nil); err != nil {
			rt.Fatalf("Init: %v", err)
		}

		steps := rapid.IntRange(0, 50).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			action := rapid.IntRange(0, 5).Draw(rt, "action")
			switch action {
			case 0:
				_ = d.NetworkRequest(0)
			case 1:
				_ = d.NetworkRelease(0)
			case 2:
				_ = d.RepeatMessageRequest(0)
			case 3:
				_ = d.TxConfirmation(cfg.Tx.PduID, rapid.Bool().Draw(rt, "ok"))
			case 4:
				frame := make([]byte, 8)
				frame[1] = byte(rapid.IntRange(0, 255).Draw(rt, "cbv"))
				_ = d.RxIndication(cfg.Rx[0].PduID, frame)
			case 5:
				d.MainFunction()
			}
			checkInvariants(rt, d, 0)
		}
	})
}
