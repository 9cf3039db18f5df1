package cannm

// Mode is the coarse operating mode a channel is in, derived from State but
// kept as its own field because several operations gate on Mode alone
// (spec.md §3 invariant ties Mode and State together one-directionally).
type Mode uint8

const (
	ModeBusSleep Mode = iota
	ModePrepareBusSleep
	ModeNetwork
)

func (m Mode) String() string {
	switch m {
	case ModeBusSleep:
		return "BusSleep"
	case ModePrepareBusSleep:
		return "PrepareBusSleep"
	case ModeNetwork:
		return "Network"
	default:
		return "Unknown"
	}
}

// State is the fine-grained channel state.
type State uint8

const (
	StateUninit State = iota
	StateBusSleep
	StatePrepareBusSleep
	StateRepeatMessage
	StateNormalOperation
	StateReadySleep
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "Uninit"
	case StateBusSleep:
		return "BusSleep"
	case StatePrepareBusSleep:
		return "PrepareBusSleep"
	case StateRepeatMessage:
		return "RepeatMessage"
	case StateNormalOperation:
		return "NormalOperation"
	case StateReadySleep:
		return "ReadySleep"
	default:
		return "Unknown"
	}
}

// modeOf returns the Mode implied by a State under the spec.md §3
// invariant `mode = BusSleep ⇔ state ∈ {BusSleep, Uninit}` etc. The
// transition methods set mode and state side by side; the invariant tests
// use modeOf to check that the two agree.
func modeOf(s State) Mode {
	switch s {
	case StateUninit, StateBusSleep:
		return ModeBusSleep
	case StatePrepareBusSleep:
		return ModePrepareBusSleep
	default:
		return ModeNetwork
	}
}

// noRxPdu is the sentinel for ChannelState.rxLastPdu meaning "nothing
// received yet", mirroring the C source's NO_PDU_RECEIVED = -1.
const noRxPdu = -1

// ModuleStatus is the Driver-wide lifecycle flag.
type ModuleStatus uint8

const (
	StatusUninit ModuleStatus = iota
	StatusInit
)

// ChannelState is the runtime, mutable state of exactly one configured
// channel. Frame buffers live here, not on ChannelConfig, per spec.md §9's
// design note that runtime-mutable bytes must not live on read-only config.
type ChannelState struct {
	mode  Mode
	state State

	requested bool
	txEnabled bool

	rxLastPdu int

	timeout        timer
	messageCycle   timer
	repeatMessage  timer
	waitBusSleep   timer
	remoteSleepInd timer

	immediateTransmissions int
	busLoadReduction       bool

	remoteSleepIndFlag    bool
	remoteSleepIndEnabled bool

	nmPduFilterAlgorithm bool

	// lastTxStatus is the per-channel retry latch the Tx scheduler
	// consults to decide whether to give up an immediate-tx burst early.
	// spec.md §9 flags the original source's equivalent as a suspicious
	// function-local static; here it is unambiguously per-channel.
	lastTxStatus error

	txBuffer []byte
	rxBuffers [][]byte
}

func newChannelState(cfg *ChannelConfig) *ChannelState {
	cs := &ChannelState{
		mode:      ModeBusSleep,
		state:     StateBusSleep,
		rxLastPdu: noRxPdu,
		txBuffer:  newInitializedFrame(cfg),
		rxBuffers: make([][]byte, len(cfg.Rx)),
	}
	for i, rx := range cfg.Rx {
		buf := make([]byte, rx.Length)
		for j := range buf {
			buf[j] = 0xFF
		}
		cs.rxBuffers[i] = buf
	}
	return cs
}
