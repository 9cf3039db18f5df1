package cannm

import "github.com/cannm/cannm/internal/canlog"

// LoggingNotifier forwards every notification to a structured logger,
// wrapping a second Notifier (often noopNotifier, or an upper-layer
// orchestrator) that it always invokes after logging.
type LoggingNotifier struct {
	log  *canlog.Logger
	next Notifier
}

// NewLoggingNotifier wraps next (nil means no further delegation) with
// structured logging via log.
func NewLoggingNotifier(log *canlog.Logger, next Notifier) *LoggingNotifier {
	if next == nil {
		next = noopNotifier{}
	}
	return &LoggingNotifier{log: log, next: next}
}

func (n *LoggingNotifier) BusSleepMode(ch int) {
	n.log.Notification(ch, "BusSleepMode")
	n.next.BusSleepMode(ch)
}

func (n *LoggingNotifier) PrepareBusSleepMode(ch int) {
	n.log.Notification(ch, "PrepareBusSleepMode")
	n.next.PrepareBusSleepMode(ch)
}

func (n *LoggingNotifier) NetworkMode(ch int) {
	n.log.Notification(ch, "NetworkMode")
	n.next.NetworkMode(ch)
}

func (n *LoggingNotifier) NetworkStartIndication(ch int) {
	n.log.Notification(ch, "NetworkStartIndication")
	n.next.NetworkStartIndication(ch)
}

func (n *LoggingNotifier) RemoteSleepCancellation(ch int) {
	n.log.Notification(ch, "RemoteSleepCancellation")
	n.next.RemoteSleepCancellation(ch)
}

func (n *LoggingNotifier) RemoteSleepInd(ch int) {
	n.log.Notification(ch, "RemoteSleepInd")
	n.next.RemoteSleepInd(ch)
}

func (n *LoggingNotifier) TxTimeoutException(ch int) {
	n.log.Notification(ch, "TxTimeoutException")
	n.next.TxTimeoutException(ch)
}

func (n *LoggingNotifier) PduRxIndication(ch int) {
	n.log.Notification(ch, "PduRxIndication")
	n.next.PduRxIndication(ch)
}

func (n *LoggingNotifier) StateChangeNotification(ch int, from, to State) {
	n.log.StateChange(ch, from.String(), to.String())
	n.next.StateChangeNotification(ch, from, to)
}

func (n *LoggingNotifier) RepeatMessageIndication(ch int) {
	n.log.Notification(ch, "RepeatMessageIndication")
	n.next.RepeatMessageIndication(ch)
}
