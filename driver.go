package cannm

import "github.com/cannm/cannm/internal/canlog"

/*
Package cannm implements the CAN Network Management layer: a per-channel
state machine that coordinates the sleep/wake lifecycle of an ECU with
other nodes on a shared CAN bus through a symmetric, distributed handshake.

A Driver owns every configured channel. Establish one with New, then drive
it with MainFunction on a fixed period and the Request/Release/Get/Set
operations from the upper layer, and RxIndication/TxConfirmation/
TriggerTransmit from the lower layer.

Every public operation follows the module's Ok/NotOk convention: nil error
means Ok, a non-nil *CanNmError means NotOk and the reason it failed.
*/

// Driver is the outward API of the module: it dispatches each call to the
// correct channel and transition, and enforces the Init/mode gating spec.md
// §4.4 specifies. Modeled on rolfl/modbus's top-level Modbus interface,
// which gates access to per-unit Client/Server state the same way Driver
// gates access to per-channel state.
type Driver struct {
	status ModuleStatus
	global GlobalConfig

	channels []*channel
	byHandle map[int]*channel

	devLog *canlog.Logger
}

// New builds a Driver in the Uninit state. Call Init before any other
// operation.
func New() *Driver {
	return &Driver{status: StatusUninit}
}

// AttachDevLogger routes every subsequent precondition-violation error
// (SPEC_FULL.md's Det-equivalent development errors) through log at Warn,
// tagged with the failing Reason as its det_code, before it is returned to
// the caller. A Driver built without one (the zero value) logs nothing.
func (d *Driver) AttachDevLogger(log *canlog.Logger) {
	d.devLog = log
}

// devError logs a precondition-violation error against channel ch, if a
// dev logger is attached, and returns err unchanged so call sites can
// write `return d.devError(handle, errWrongMode(...))`.
func (d *Driver) devError(ch int, err error) error {
	if d.devLog == nil || err == nil {
		return err
	}
	detCode := "UNKNOWN"
	if cnErr, ok := err.(*CanNmError); ok {
		detCode = cnErr.Reason().String()
	}
	d.devLog.DevError(ch, detCode, err)
	return err
}

// Init builds every configured channel per spec.md §3's lifecycle rule:
// state<-BusSleep, mode<-BusSleep, all timers stopped, frame buffers reset.
// Init always succeeds given well-formed configuration; a configuration
// error is returned without mutating the Driver.
func (d *Driver) Init(global GlobalConfig, configs []*ChannelConfig, transport Transport, notify Notifier, router PduRouter) error {
	if notify == nil {
		notify = noopNotifier{}
	}
	channels := make([]*channel, 0, len(configs))
	byHandle := make(map[int]*channel, len(configs))
	for _, cfg := range configs {
		if err := cfg.validate(&global); err != nil {
			return d.devError(cfg.Channel, err)
		}
		if _, dup := byHandle[cfg.Channel]; dup {
			return d.devError(cfg.Channel, errOutOfRange("duplicate channel handle %d", cfg.Channel))
		}
		ch := newChannel(cfg, &global, transport, notify, router)
		channels = append(channels, ch)
		byHandle[cfg.Channel] = ch
	}
	d.global = global
	d.channels = channels
	d.byHandle = byHandle
	d.status = StatusInit
	return nil
}

// DeInit is all-or-nothing per spec.md §3/§9: it re-initializes every
// channel and moves the module back to Uninit only if every channel is
// currently in BusSleep; otherwise it is a silent no-op, exactly as
// spec.md's table specifies ("Otherwise return silently (no-op)").
func (d *Driver) DeInit() error {
	if d.status == StatusUninit {
		return nil
	}
	for _, ch := range d.channels {
		if ch.state.state != StateBusSleep {
			return nil
		}
	}
	for _, ch := range d.channels {
		ch.state.state = StateUninit
		ch.state.timeout.stop()
		ch.state.messageCycle.stop()
		ch.state.repeatMessage.stop()
		ch.state.waitBusSleep.stop()
		ch.state.remoteSleepInd.stop()
	}
	d.status = StatusUninit
	return nil
}

// lookup resolves a channel handle, enforcing the Init/range gating every
// operation below shares.
func (d *Driver) lookup(handle int) (*channel, error) {
	if d.status != StatusInit {
		return nil, d.devError(handle, errUninit("module is not initialized"))
	}
	ch, ok := d.byHandle[handle]
	if !ok {
		return nil, d.devError(handle, errOutOfRange("unknown channel handle %d", handle))
	}
	return ch, nil
}

// lookupByTxPduID resolves the channel whose configured TX PDU carries
// txID, for the lower-layer operations spec.md §4.4 keys by PDU id rather
// than channel handle (TxConfirmation, TriggerTransmit).
func (d *Driver) lookupByTxPduID(txID int) (*channel, error) {
	if d.status != StatusInit {
		return nil, d.devError(txID, errUninit("module is not initialized"))
	}
	for _, ch := range d.channels {
		if ch.cfg.Tx.PduID == txID {
			return ch, nil
		}
	}
	return nil, d.devError(txID, errOutOfRange("unknown tx pdu id %d", txID))
}

// lookupByRxPduID resolves the channel and ring-buffer slot whose
// configured RX PDU carries rxID, for RxIndication, which spec.md §4.4
// keys by PDU id rather than channel handle.
func (d *Driver) lookupByRxPduID(rxID int) (*channel, int, error) {
	if d.status != StatusInit {
		return nil, 0, d.devError(rxID, errUninit("module is not initialized"))
	}
	for _, ch := range d.channels {
		for i, rx := range ch.cfg.Rx {
			if rx.PduID == rxID {
				return ch, i, nil
			}
		}
	}
	return nil, 0, d.devError(rxID, errOutOfRange("unknown rx pdu id %d", rxID))
}

// Status returns the module's lifecycle status.
func (d *Driver) Status() ModuleStatus {
	return d.status
}

// PassiveStartUp drives BusSleep/PrepareBusSleep to RepeatMessage without
// a NetworkRequest, when the channel is configured for passive mode.
func (d *Driver) PassiveStartUp(handle int) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	return d.devError(handle, ch.passiveStartUp())
}

// NetworkRequest asserts that the caller needs the network. Always Ok once
// the channel is resolved (spec.md §4.4).
func (d *Driver) NetworkRequest(handle int) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	ch.networkRequest()
	return nil
}

// NetworkRelease clears the caller's need for the network. Always Ok once
// the channel is resolved.
func (d *Driver) NetworkRelease(handle int) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	ch.networkRelease()
	return nil
}

// DisableCommunication stops transmission on the channel.
func (d *Driver) DisableCommunication(handle int) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	return d.devError(handle, ch.disableCommunication())
}

// EnableCommunication resumes transmission on the channel.
func (d *Driver) EnableCommunication(handle int) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	return d.devError(handle, ch.enableCommunication())
}

// SetUserData copies data into the channel's TX user-data region.
func (d *Driver) SetUserData(handle int, data []byte) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	if !d.global.UserDataEnabled || d.global.ComUserDataSupport {
		return d.devError(handle, errWrongMode("channel %d: SetUserData requires user data enabled and ComUserDataSupport disabled", handle))
	}
	return newFrameView(ch.cfg, ch.state.txBuffer).setUserData(data)
}

// GetUserData returns a copy of the most recently received frame's
// user-data region.
func (d *Driver) GetUserData(handle int) ([]byte, error) {
	ch, err := d.lookup(handle)
	if err != nil {
		return nil, err
	}
	if !d.global.UserDataEnabled {
		return nil, d.devError(handle, errWrongMode("channel %d: GetUserData requires user data enabled", handle))
	}
	if ch.state.rxLastPdu == noRxPdu {
		return nil, d.devError(handle, errNoData("channel %d: no PDU received yet", handle))
	}
	return newFrameView(ch.cfg, ch.state.rxBuffers[ch.state.rxLastPdu]).userData(), nil
}

// Transmit forwards a PDU to the lower layer when ComUserDataSupport or
// GlobalPnSupport makes this module responsible for it.
func (d *Driver) Transmit(handle int, data []byte) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	if !d.global.ComUserDataSupport && !d.global.GlobalPnSupport {
		return d.devError(handle, errWrongMode("channel %d: Transmit requires ComUserDataSupport or GlobalPnSupport", handle))
	}
	if err := ch.transport.TransmitFrame(ch.cfg.Tx.PduID, data); err != nil {
		return errLowerLayer("channel %d: transmit failed: %v", handle, err)
	}
	return nil
}

// GetNodeIdentifier reads the NID byte of the most recently received frame.
func (d *Driver) GetNodeIdentifier(handle int) (byte, error) {
	ch, err := d.lookup(handle)
	if err != nil {
		return 0, err
	}
	if ch.cfg.PduNidPosition == Off {
		return 0, d.devError(handle, errWrongMode("channel %d: NID position not configured", handle))
	}
	if ch.state.rxLastPdu == noRxPdu {
		return 0, d.devError(handle, errNoData("channel %d: no PDU received yet", handle))
	}
	return newFrameView(ch.cfg, ch.state.rxBuffers[ch.state.rxLastPdu]).nid()
}

// GetLocalNodeIdentifier returns this channel's configured NodeID.
func (d *Driver) GetLocalNodeIdentifier(handle int) (byte, error) {
	ch, err := d.lookup(handle)
	if err != nil {
		return 0, err
	}
	return ch.cfg.NodeID, nil
}

// RepeatMessageRequest forces the channel into RepeatMessage, setting the
// RMR bit in the outgoing CBV.
func (d *Driver) RepeatMessageRequest(handle int) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	return d.devError(handle, ch.repeatMessageRequest())
}

// GetPduData copies the entire most-recent received frame.
func (d *Driver) GetPduData(handle int) ([]byte, error) {
	ch, err := d.lookup(handle)
	if err != nil {
		return nil, err
	}
	if !ch.cfg.NodeDetectionEnabled && !d.global.UserDataEnabled && !ch.cfg.NodeIDEnabled {
		return nil, d.devError(handle, errWrongMode("channel %d: GetPduData requires node detection, user data, or node id to be enabled", handle))
	}
	if ch.state.rxLastPdu == noRxPdu {
		return nil, d.devError(handle, errNoData("channel %d: no PDU received yet", handle))
	}
	src := ch.state.rxBuffers[ch.state.rxLastPdu]
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// GetState returns the channel's current State and Mode.
func (d *Driver) GetState(handle int) (State, Mode, error) {
	ch, err := d.lookup(handle)
	if err != nil {
		return StateUninit, ModeBusSleep, err
	}
	return ch.state.state, ch.state.mode, nil
}

// RequestBusSynchronization transmits one PDU immediately, outside the
// normal message-cycle schedule.
func (d *Driver) RequestBusSynchronization(handle int) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	if d.global.PassiveModeEnabled {
		return d.devError(handle, errWrongMode("channel %d: RequestBusSynchronization not available in passive mode", handle))
	}
	if ch.state.mode != ModeNetwork || !ch.state.txEnabled {
		return d.devError(handle, errWrongMode("channel %d: RequestBusSynchronization requires Network mode and tx enabled", handle))
	}
	if err := ch.transmitIfEnabled(); err != nil {
		return errLowerLayer("channel %d: %v", handle, err)
	}
	return nil
}

// CheckRemoteSleepInd reports the channel's current remote-sleep
// indication.
func (d *Driver) CheckRemoteSleepInd(handle int) (bool, error) {
	ch, err := d.lookup(handle)
	if err != nil {
		return false, err
	}
	s := ch.state.state
	if s == StateBusSleep || s == StatePrepareBusSleep || s == StateRepeatMessage {
		return false, d.devError(handle, errWrongMode("channel %d: CheckRemoteSleepInd invalid in state %s", handle, s))
	}
	return ch.state.remoteSleepIndFlag, nil
}

// SetSleepReadyBit sets the NM_COORDINATOR_SLEEP_READY bit and transmits
// the result immediately. The bit is always set, never cleared, per
// spec.md §4.4's Driver Contract table and CanNm_SetSleepReadyBit in the
// reference source, which never reads its boolean argument in the body;
// ready is accepted only to match the upper layer's call shape.
func (d *Driver) SetSleepReadyBit(handle int, ready bool) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	if ch.cfg.PduCbvPosition == Off || !d.global.CoordinationSyncSupport {
		return d.devError(handle, errWrongMode("channel %d: SetSleepReadyBit requires a configured CBV position and coordination sync support", handle))
	}
	_ = newFrameView(ch.cfg, ch.state.txBuffer).setCBVBit(BitCoordinatorSleepReady)
	if err := ch.transmitIfEnabled(); err != nil {
		return errLowerLayer("channel %d: %v", handle, err)
	}
	return nil
}

// TxConfirmation reports the result of a transmission the lower layer
// attempted on the channel's behalf, keyed by the TX PDU id.
func (d *Driver) TxConfirmation(txID int, ok bool) error {
	ch, err := d.lookupByTxPduID(txID)
	if err != nil {
		return err
	}
	ch.txConfirmation(ok)
	return nil
}

// RxIndication reports a received PDU, keyed by the RX PDU id.
func (d *Driver) RxIndication(rxID int, data []byte) error {
	ch, rxIndex, err := d.lookupByRxPduID(rxID)
	if err != nil {
		return err
	}
	ch.rxIndication(rxIndex, data)
	return nil
}

// ConfirmPnAvailability enables the PN filter flag once GlobalPnSupport is
// configured.
func (d *Driver) ConfirmPnAvailability(handle int) error {
	ch, err := d.lookup(handle)
	if err != nil {
		return err
	}
	if !d.global.GlobalPnSupport {
		return d.devError(handle, errWrongMode("channel %d: ConfirmPnAvailability requires GlobalPnSupport", handle))
	}
	ch.state.nmPduFilterAlgorithm = true
	return nil
}

// TriggerTransmit copies the channel's TX frame into buf, keyed by the TX
// PDU id, for lower layers that pull frame contents at transmission time
// rather than push them.
func (d *Driver) TriggerTransmit(txID int, buf []byte) (int, error) {
	ch, err := d.lookupByTxPduID(txID)
	if err != nil {
		return 0, err
	}
	if len(buf) < len(ch.state.txBuffer) {
		return 0, d.devError(txID, errOutOfRange("tx pdu %d: buffer of %d bytes too small for %d byte frame", txID, len(buf), len(ch.state.txBuffer)))
	}
	n := copy(buf, ch.state.txBuffer)
	return n, nil
}

// MainFunction ticks every channel's five timers once, in the fixed order
// spec.md §5 mandates: timeout, message_cycle, repeat_message,
// wait_bus_sleep, remote_sleep_ind.
func (d *Driver) MainFunction() {
	if d.status != StatusInit {
		return
	}
	for _, ch := range d.channels {
		ch.tickAll()
	}
}
