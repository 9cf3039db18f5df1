package cannm

import "time"

// RxBuffer describes one slot of a channel's receive ring: a PDU id and the
// length of the byte array that ChannelState allocates for the slot and
// RxIndication copies into.
type RxBuffer struct {
	PduID  int
	Length int
}

// TxBuffer describes the single outgoing PDU for a channel.
type TxBuffer struct {
	PduID  int
	Length int
}

// ChannelConfig is read-only, constructed once at Init and never mutated
// afterward (spec.md §3; no dynamic reconfiguration, per the Non-goals).
type ChannelConfig struct {
	Channel int
	NodeID  byte

	// PduNidPosition / PduCbvPosition are byte offsets in the frame, or Off.
	PduNidPosition int
	PduCbvPosition int
	PduLength      int

	Tx  TxBuffer
	Rx  []RxBuffer

	// Durations, converted to tick counts (SPEC_FULL §3) each time a timer
	// is started: a time.Duration value divided by
	// GlobalConfig.MainFunctionPeriod. Init checks each is an exact multiple.
	TimeoutTime         time.Duration
	MsgCycleTime        time.Duration
	MsgCycleOffset      time.Duration
	RepeatMessageTime   time.Duration
	WaitBusSleepTime    time.Duration
	RemoteSleepIndTime  time.Duration
	ImmediateNmCycleTime time.Duration
	MsgReducedTime      time.Duration

	NodeDetectionEnabled            bool
	ActiveWakeupBitEnabled          bool
	BusLoadReductionActive          bool
	NodeIDEnabled                   bool
	PnHandleMultipleNetworkRequests bool
	ImmediateNmTransmissions        int
}

// GlobalConfig is read-only and shared across all channels.
type GlobalConfig struct {
	MainFunctionPeriod time.Duration

	PassiveModeEnabled       bool
	RemoteSleepIndEnabled    bool
	StateChangeIndEnabled    bool
	ComUserDataSupport       bool
	UserDataEnabled          bool
	GlobalPnSupport          bool
	ImmediateRestartEnabled  bool
	CoordinationSyncSupport  bool
	PduRxIndicationEnabled   bool
}

// ticks converts a configured duration into a tick count against the
// channel's main function period. Init rejects any duration that isn't an
// exact multiple (validate below), so truncation here never loses time.
func ticks(d time.Duration, period time.Duration) int {
	if period <= 0 {
		return 0
	}
	return int(d / period)
}

// validate enforces the Init-time invariants SPEC_FULL §3 calls for: every
// configured duration is a non-negative multiple of the tick period, and
// the frame layout assumption that NID/CBV sit at bytes 0/1 holds.
func (cfg *ChannelConfig) validate(g *GlobalConfig) error {
	if g.MainFunctionPeriod <= 0 {
		return errOutOfRange("main function period must be positive")
	}
	durations := map[string]time.Duration{
		"timeout_time":            cfg.TimeoutTime,
		"msg_cycle_time":          cfg.MsgCycleTime,
		"msg_cycle_offset":        cfg.MsgCycleOffset,
		"repeat_message_time":     cfg.RepeatMessageTime,
		"wait_bus_sleep_time":     cfg.WaitBusSleepTime,
		"remote_sleep_ind_time":   cfg.RemoteSleepIndTime,
		"immediate_nm_cycle_time": cfg.ImmediateNmCycleTime,
		"msg_reduced_time":        cfg.MsgReducedTime,
	}
	for name, d := range durations {
		if d < 0 {
			return errOutOfRange("channel %d: %s must not be negative", cfg.Channel, name)
		}
		if d%g.MainFunctionPeriod != 0 {
			return errOutOfRange("channel %d: %s (%v) is not a multiple of main_function_period (%v)", cfg.Channel, name, d, g.MainFunctionPeriod)
		}
	}
	if len(cfg.Rx) == 0 {
		return errOutOfRange("channel %d: at least one RX buffer is required", cfg.Channel)
	}
	return cfg.validateLayout()
}
