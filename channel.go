package cannm

import "time"

/*
This file implements the per-channel state machine: the transition table of
spec.md §4.3, its entry actions, the message-cycle Tx scheduler, and the
RxIndication bookkeeping. Every exported operation on Driver (driver.go)
ultimately calls into one of the methods here.
*/

// channel binds one ChannelConfig to its mutable ChannelState plus the
// collaborators it needs to perform entry actions: a Transport to send
// frames, a Notifier to report upstream, and a PduRouter for the
// TxConfirmation→RxIndication forwarding path.
type channel struct {
	cfg    *ChannelConfig
	global *GlobalConfig
	state  *ChannelState

	transport Transport
	notify    Notifier
	router    PduRouter

	diag channelDiagnostics
}

func newChannel(cfg *ChannelConfig, global *GlobalConfig, transport Transport, notify Notifier, router PduRouter) *channel {
	return &channel{
		cfg:       cfg,
		global:    global,
		state:     newChannelState(cfg),
		transport: transport,
		notify:    notify,
		router:    router,
	}
}

func (c *channel) ticks(d time.Duration) int {
	return ticks(d, c.global.MainFunctionPeriod)
}

// -------------------------------------------------------------------
// Transition notification plumbing
// -------------------------------------------------------------------

func (c *channel) notifyStateChange(from, to State) {
	c.diag.recordStateChange()
	if c.global.StateChangeIndEnabled {
		c.notify.StateChangeNotification(c.cfg.Channel, from, to)
	}
}

// -------------------------------------------------------------------
// State-entry actions, one per transition-table cell naming a destination.
// Named after the C source's `<From>_to_<To>` functions they are grounded
// on, generalized to take the originating state explicitly.
// -------------------------------------------------------------------

func (c *channel) toBusSleepFromBusSleep() {
	c.notify.NetworkStartIndication(c.cfg.Channel)
	c.notifyStateChange(StateBusSleep, StateBusSleep)
}

func (c *channel) enterRepeatMessage(from State) {
	s := c.state
	s.mode = ModeNetwork
	s.state = StateRepeatMessage
	s.busLoadReduction = false
	s.repeatMessage.start(c.ticks(c.cfg.RepeatMessageTime))
	s.messageCycle.start(c.ticks(c.cfg.MsgCycleOffset))
	if from == StateBusSleep || from == StatePrepareBusSleep {
		s.timeout.start(c.ticks(c.cfg.TimeoutTime))
		c.notify.NetworkMode(c.cfg.Channel)
	}
	if from == StateNormalOperation {
		if s.remoteSleepIndFlag {
			s.remoteSleepIndFlag = false
			c.notify.RemoteSleepCancellation(c.cfg.Channel)
		}
	}
	c.notifyStateChange(from, StateRepeatMessage)
}

func (c *channel) repeatMessageToRepeatMessage() {
	c.state.timeout.start(c.ticks(c.cfg.TimeoutTime))
	c.notifyStateChange(StateRepeatMessage, StateRepeatMessage)
}

func (c *channel) repeatMessageToReadySleep() {
	s := c.state
	s.mode = ModeNetwork
	s.state = StateReadySleep
	s.txEnabled = false
	if c.cfg.NodeDetectionEnabled {
		_ = newFrameView(c.cfg, s.txBuffer).clearCBV()
	}
	c.notifyStateChange(StateRepeatMessage, StateReadySleep)
}

func (c *channel) enterNormalOperation(from State) {
	s := c.state
	s.mode = ModeNetwork
	s.state = StateNormalOperation
	if c.cfg.BusLoadReductionActive {
		s.busLoadReduction = true
	}
	if from == StateRepeatMessage && c.cfg.NodeDetectionEnabled {
		_ = newFrameView(c.cfg, s.txBuffer).clearCBV()
	}
	if from == StateReadySleep {
		if !c.global.PassiveModeEnabled {
			s.txEnabled = true
		}
		s.messageCycle.start(c.ticks(c.cfg.MsgCycleOffset))
	}
	if c.global.RemoteSleepIndEnabled {
		s.remoteSleepInd.start(c.ticks(c.cfg.RemoteSleepIndTime))
	}
	c.notifyStateChange(from, StateNormalOperation)
}

func (c *channel) normalOperationToNormalOperation() {
	c.state.timeout.start(c.ticks(c.cfg.TimeoutTime))
	c.notifyStateChange(StateNormalOperation, StateNormalOperation)
}

func (c *channel) normalOperationToReadySleep() {
	s := c.state
	s.mode = ModeNetwork
	s.state = StateReadySleep
	s.txEnabled = false
	c.notifyStateChange(StateNormalOperation, StateReadySleep)
}

func (c *channel) readySleepToPrepareBusSleep() {
	s := c.state
	s.mode = ModePrepareBusSleep
	s.state = StatePrepareBusSleep
	s.messageCycle.stop()
	s.remoteSleepInd.stop()
	s.waitBusSleep.start(c.ticks(c.cfg.WaitBusSleepTime))
	c.notify.PrepareBusSleepMode(c.cfg.Channel)
	c.notifyStateChange(StateReadySleep, StatePrepareBusSleep)
}

func (c *channel) prepareBusSleepToBusSleep() {
	s := c.state
	s.mode = ModeBusSleep
	s.state = StateBusSleep
	c.notify.BusSleepMode(c.cfg.Channel)
	c.notifyStateChange(StatePrepareBusSleep, StateBusSleep)
}

// networkModeToNetworkMode is the common "stay put, restart timeout"
// self-loop shared by RxIndication and TxConfirmation while in Network mode.
func (c *channel) networkModeToNetworkMode() {
	c.state.timeout.start(c.ticks(c.cfg.TimeoutTime))
}

// -------------------------------------------------------------------
// Transmit primitive
// -------------------------------------------------------------------

func (c *channel) transmitIfEnabled() error {
	if !c.state.txEnabled {
		return nil
	}
	err := c.transport.TransmitFrame(c.cfg.Tx.PduID, c.state.txBuffer)
	c.diag.recordSend(err == nil)
	return err
}

// -------------------------------------------------------------------
// Timer expiry callbacks, dispatched from Driver.MainFunction via tickAll.
// -------------------------------------------------------------------

func (c *channel) tickAll() {
	s := c.state
	if s.timeout.tick() {
		c.onTimeoutExpired()
	}
	if s.messageCycle.tick() {
		c.onMessageCycleExpired()
	}
	if s.repeatMessage.tick() {
		c.onRepeatMessageExpired()
	}
	if s.waitBusSleep.tick() {
		c.onWaitBusSleepExpired()
	}
	if s.remoteSleepInd.tick() {
		c.onRemoteSleepIndExpired()
	}
}

func (c *channel) onTimeoutExpired() {
	switch c.state.state {
	case StateRepeatMessage:
		c.diag.recordTimeout()
		c.notify.TxTimeoutException(c.cfg.Channel)
		c.state.timeout.start(c.ticks(c.cfg.TimeoutTime))
	case StateNormalOperation:
		c.diag.recordTimeout()
		c.notify.TxTimeoutException(c.cfg.Channel)
		c.normalOperationToNormalOperation()
	case StateReadySleep:
		if c.cfg.ActiveWakeupBitEnabled {
			_ = newFrameView(c.cfg, c.state.txBuffer).clearCBVBit(BitActiveWakeup)
		}
		c.readySleepToPrepareBusSleep()
	}
}

func (c *channel) onMessageCycleExpired() {
	s := c.state
	if s.state != StateRepeatMessage && s.state != StateNormalOperation {
		return
	}
	txErr := c.transmitIfEnabled()
	if s.immediateTransmissions > 0 {
		if txErr != nil {
			if s.lastTxStatus != nil {
				s.immediateTransmissions = 0
				s.messageCycle.start(c.ticks(c.cfg.MsgCycleTime))
			} else {
				s.messageCycle.start(1)
			}
		} else {
			s.messageCycle.start(c.ticks(c.cfg.ImmediateNmCycleTime))
			s.immediateTransmissions--
		}
	} else {
		s.messageCycle.start(c.ticks(c.cfg.MsgCycleTime))
	}
	s.lastTxStatus = txErr
}

func (c *channel) onRepeatMessageExpired() {
	if c.state.state != StateRepeatMessage {
		return
	}
	if c.state.requested {
		c.enterNormalOperation(StateRepeatMessage)
	} else {
		c.repeatMessageToReadySleep()
	}
}

func (c *channel) onWaitBusSleepExpired() {
	if c.state.mode == ModePrepareBusSleep {
		c.prepareBusSleepToBusSleep()
	}
}

func (c *channel) onRemoteSleepIndExpired() {
	c.state.remoteSleepIndFlag = true
	c.notify.RemoteSleepInd(c.cfg.Channel)
	c.state.remoteSleepInd.start(c.ticks(c.cfg.RemoteSleepIndTime))
}

// startImmediateBurst primes the immediate-transmission count and then
// synchronously drives one message-cycle expiry, mirroring the original
// source's direct call into the expiry callback rather than merely arming
// a timer (CanNm_NetworkRequest, SWS_CanNm_00334).
func (c *channel) startImmediateBurst() {
	c.state.immediateTransmissions = c.cfg.ImmediateNmTransmissions
	c.diag.recordImmediateBurst()
	c.onMessageCycleExpired()
}

// -------------------------------------------------------------------
// Public-contract triggers: networkRequest, networkRelease, ...
// -------------------------------------------------------------------

func (c *channel) networkRequest() {
	s := c.state
	s.requested = true

	switch s.mode {
	case ModeBusSleep:
		if !c.global.PassiveModeEnabled {
			s.txEnabled = true
		}
		c.enterRepeatMessage(StateBusSleep)
		if c.cfg.ActiveWakeupBitEnabled {
			_ = newFrameView(c.cfg, s.txBuffer).setCBVBit(BitActiveWakeup)
			if c.cfg.ImmediateNmTransmissions > 0 {
				c.startImmediateBurst()
			}
		}
	case ModePrepareBusSleep:
		if !c.global.PassiveModeEnabled {
			s.txEnabled = true
		}
		c.enterRepeatMessage(StatePrepareBusSleep)
		if c.cfg.ActiveWakeupBitEnabled {
			_ = newFrameView(c.cfg, s.txBuffer).setCBVBit(BitActiveWakeup)
			if c.global.ImmediateRestartEnabled || c.cfg.ImmediateNmTransmissions > 0 {
				c.startImmediateBurst()
			}
		}
	case ModeNetwork:
		switch s.state {
		case StateReadySleep:
			if c.cfg.PnHandleMultipleNetworkRequests && c.cfg.ImmediateNmTransmissions > 0 {
				c.readySleepToRepeatMessage()
				c.startImmediateBurst()
			} else {
				c.enterNormalOperation(StateReadySleep)
			}
		case StateNormalOperation:
			if c.cfg.PnHandleMultipleNetworkRequests && c.cfg.ImmediateNmTransmissions > 0 {
				c.enterRepeatMessage(StateNormalOperation)
				c.startImmediateBurst()
			}
			// else: no PN condition - self-loop is a true no-op in the
			// reference behavior this is grounded on; nothing fires.
		case StateRepeatMessage:
			if c.cfg.PnHandleMultipleNetworkRequests && c.cfg.ImmediateNmTransmissions > 0 {
				c.repeatMessageToRepeatMessage()
				c.startImmediateBurst()
			}
		}
	}
}

func (c *channel) readySleepToRepeatMessage() {
	s := c.state
	s.mode = ModeNetwork
	s.state = StateRepeatMessage
	if !c.global.PassiveModeEnabled {
		s.txEnabled = true
	}
	s.busLoadReduction = false
	s.repeatMessage.start(c.ticks(c.cfg.RepeatMessageTime))
	s.messageCycle.start(c.ticks(c.cfg.MsgCycleOffset))
	if s.remoteSleepIndFlag {
		s.remoteSleepIndFlag = false
		c.notify.RemoteSleepCancellation(c.cfg.Channel)
	}
	c.notifyStateChange(StateReadySleep, StateRepeatMessage)
}

func (c *channel) networkRelease() {
	c.state.requested = false
	if c.state.mode == ModeNetwork && c.state.state == StateNormalOperation {
		c.normalOperationToReadySleep()
	}
}

func (c *channel) passiveStartUp() error {
	if !c.global.PassiveModeEnabled || c.state.mode == ModeNetwork {
		return errWrongMode("channel %d: PassiveStartUp requires passive mode and mode != Network", c.cfg.Channel)
	}
	from := c.state.state
	c.enterRepeatMessage(from)
	return nil
}

func (c *channel) repeatMessageRequest() error {
	s := c.state
	if c.cfg.PduCbvPosition == Off || !c.cfg.NodeDetectionEnabled {
		return errWrongMode("channel %d: RepeatMessageRequest requires a configured CBV position and node detection", c.cfg.Channel)
	}
	if s.state != StateReadySleep && s.state != StateNormalOperation {
		return errWrongMode("channel %d: RepeatMessageRequest invalid in state %s", c.cfg.Channel, s.state)
	}
	_ = newFrameView(c.cfg, s.txBuffer).setCBVBit(BitRepeatMessageRequest)
	if s.state == StateReadySleep {
		c.repeatMessageToRepeatMessageFromReadySleep()
	} else {
		c.enterRepeatMessage(StateNormalOperation)
	}
	return nil
}

// repeatMessageToRepeatMessageFromReadySleep is ReadySleep_to_RepeatMessage,
// distinct from the common enterRepeatMessage path because it additionally
// restores TxEnabled the way the generic entry does not.
func (c *channel) repeatMessageToRepeatMessageFromReadySleep() {
	c.readySleepToRepeatMessage()
}

func (c *channel) disableCommunication() error {
	s := c.state
	if s.mode != ModeNetwork || c.global.PassiveModeEnabled {
		return errWrongMode("channel %d: DisableCommunication requires active Network mode", c.cfg.Channel)
	}
	s.txEnabled = false
	if c.global.RemoteSleepIndEnabled {
		s.remoteSleepIndEnabled = false
		s.remoteSleepInd.stop()
	}
	s.messageCycle.stop()
	s.timeout.stop()
	return nil
}

func (c *channel) enableCommunication() error {
	s := c.state
	if s.mode != ModeNetwork || c.global.PassiveModeEnabled {
		return errWrongMode("channel %d: EnableCommunication requires active Network mode", c.cfg.Channel)
	}
	if s.messageCycle.isRunning() {
		return errWrongMode("channel %d: EnableCommunication requires the message cycle timer to be stopped", c.cfg.Channel)
	}
	s.txEnabled = true
	if c.global.RemoteSleepIndEnabled {
		s.remoteSleepIndEnabled = true
		s.remoteSleepInd.start(c.ticks(c.cfg.RemoteSleepIndTime))
	}
	s.messageCycle.start(1)
	return nil
}

// rxIndication implements spec.md §4.3's RxIndication bookkeeping: ring
// advance, RMR evaluation, per-mode dispatch, remote-sleep bookkeeping,
// bus-load-reduction restart, and the PduRxIndication notification.
func (c *channel) rxIndication(rxIndex int, data []byte) {
	s := c.state
	s.rxLastPdu = (s.rxLastPdu + 1) % len(s.rxBuffers)
	copy(s.rxBuffers[s.rxLastPdu], data)
	c.diag.recordReceive()

	rmr := false
	if c.cfg.PduCbvPosition != Off && c.cfg.NodeDetectionEnabled {
		rmr = readCBVBit(c.cfg, data, BitRepeatMessageRequest)
	}

	switch s.mode {
	case ModeBusSleep:
		c.toBusSleepFromBusSleep()
	case ModePrepareBusSleep:
		c.prepareBusSleepToRepeatMessageOnRx()
	case ModeNetwork:
		c.networkModeToNetworkMode()
		c.notifyStateChange(s.state, s.state)
		if rmr {
			switch s.state {
			case StateReadySleep:
				c.readySleepToRepeatMessage()
			case StateNormalOperation:
				c.enterRepeatMessage(StateNormalOperation)
			}
		}
		if s.remoteSleepIndFlag {
			s.remoteSleepIndFlag = false
			c.notify.RemoteSleepCancellation(c.cfg.Channel)
		} else if s.remoteSleepIndEnabled {
			s.remoteSleepInd.start(c.ticks(c.cfg.RemoteSleepIndTime))
		}
	}

	if s.busLoadReduction {
		s.messageCycle.start(c.ticks(c.cfg.MsgReducedTime))
	}

	if c.global.PduRxIndicationEnabled {
		c.notify.PduRxIndication(c.cfg.Channel)
	}
}

func (c *channel) prepareBusSleepToRepeatMessageOnRx() {
	c.enterRepeatMessage(StatePrepareBusSleep)
}

func (c *channel) txConfirmation(ok bool) {
	if ok && c.state.mode == ModeNetwork {
		c.networkModeToNetworkMode()
		c.notifyStateChange(c.state.state, c.state.state)
	}
	if c.global.ComUserDataSupport && c.router != nil {
		c.router.RxIndication(c.cfg.Tx.PduID, c.state.txBuffer)
	}
}
