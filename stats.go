package cannm

/*
This file tracks per-channel diagnostic counters, adapted from the
teacher's busDiagnosticManager/serverDiagnosticManager (modbusDiagnostics.go,
serverDiagnostics.go): the same "named counters behind a snapshot accessor"
shape, but as a plain struct mutated synchronously instead of an
actor goroutine reached over an operation channel — the core has no
goroutines to run one in (SPEC_FULL §5).
*/

// ChannelDiagnostics is a point-in-time snapshot of one channel's traffic
// counters.
type ChannelDiagnostics struct {
	FramesSent      int
	FramesReceived  int
	TxTimeouts      int
	StateChanges    int
	ImmediateBursts int
}

type channelDiagnostics struct {
	counters ChannelDiagnostics
}

func (cd *channelDiagnostics) snapshot() ChannelDiagnostics {
	return cd.counters
}

func (cd *channelDiagnostics) recordSend(ok bool) {
	if ok {
		cd.counters.FramesSent++
	}
}

func (cd *channelDiagnostics) recordReceive() {
	cd.counters.FramesReceived++
}

func (cd *channelDiagnostics) recordTimeout() {
	cd.counters.TxTimeouts++
}

func (cd *channelDiagnostics) recordStateChange() {
	cd.counters.StateChanges++
}

func (cd *channelDiagnostics) recordImmediateBurst() {
	cd.counters.ImmediateBursts++
}

// Diagnostics returns a snapshot of the named channel's counters.
func (d *Driver) Diagnostics(handle int) (ChannelDiagnostics, error) {
	ch, err := d.lookup(handle)
	if err != nil {
		return ChannelDiagnostics{}, err
	}
	return ch.diag.snapshot(), nil
}
