package cannm

// Notifier is the upper-layer Network Management orchestrator's callback
// surface (spec.md §1: "only its notification callbacks matter"). A Driver
// is constructed with one Notifier shared across all its channels.
type Notifier interface {
	BusSleepMode(ch int)
	PrepareBusSleepMode(ch int)
	NetworkMode(ch int)
	NetworkStartIndication(ch int)
	RemoteSleepCancellation(ch int)
	RemoteSleepInd(ch int)
	TxTimeoutException(ch int)
	PduRxIndication(ch int)
	StateChangeNotification(ch int, from, to State)

	// RepeatMessageIndication rounds out spec.md §6's ten upper-layer
	// notifications. No transition-table row or timer expiry in this
	// implementation fires it (SPEC_FULL.md §6); it exists so a Notifier
	// can represent the full documented callback surface.
	RepeatMessageIndication(ch int)
}

// Transport is the lower-layer CAN Interface boundary (spec.md §1: "only
// the TransmitFrame(pduId, bytes) contract matters"). The RxIndication
// forwarding TxConfirmation performs when ComUserDataSupport is set goes
// through PduRouter, not Transport.
type Transport interface {
	TransmitFrame(pduID int, data []byte) error
}

// PduRouter receives the RxIndication forwarding CanNm_TxConfirmation
// performs on behalf of the upper layer when ComUserDataSupport is enabled.
type PduRouter interface {
	RxIndication(pduID int, data []byte)
}

// noopNotifier discards every notification; used where a Driver is built
// without an upper-layer orchestrator attached (e.g. in isolated tests).
type noopNotifier struct{}

func (noopNotifier) BusSleepMode(int)                    {}
func (noopNotifier) PrepareBusSleepMode(int)              {}
func (noopNotifier) NetworkMode(int)                      {}
func (noopNotifier) NetworkStartIndication(int)           {}
func (noopNotifier) RemoteSleepCancellation(int)          {}
func (noopNotifier) RemoteSleepInd(int)                   {}
func (noopNotifier) TxTimeoutException(int)               {}
func (noopNotifier) PduRxIndication(int)                  {}
func (noopNotifier) StateChangeNotification(int, State, State) {}
func (noopNotifier) RepeatMessageIndication(int)          {}
