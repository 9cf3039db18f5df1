// Package simbus is an in-memory stand-in for the lower-layer CAN
// Interface and PDU router that spec.md places out of scope for the core.
// It wires multiple cannm.Driver instances to each other the way
// rolfl/modbus's tcp.go/rtu.go each wire a concrete medium to the same
// adu-passing contract the modbus core depends on — except simulated
// in-process instead of over a socket or serial port, and driven
// synchronously step by step rather than through goroutines and channels,
// consistent with the core's single-threaded concurrency model.
package simbus

import "github.com/cannm/cannm"

// node is one attached participant: the channel handle it transmits as on
// this bus, and the Driver instance receiving frames addressed to it.
type node struct {
	handle int
	driver *cannm.Driver
}

// Bus is a private loopback CAN bus: every frame a participant transmits is
// broadcast by its PDU id to every other participant's RxIndication (as
// real CAN frames are, by identifier rather than by destination address),
// and TxConfirmation is reported back to the sender immediately.
type Bus struct {
	nodes []node
}

// New returns an empty simulated bus.
func New() *Bus {
	return &Bus{}
}

// Attach registers a Driver as a participant, identified on the bus by its
// channel handle for diagnostics only — frames are routed by PDU id, not
// by handle. Returns a cannm.Transport bound to that driver for use as its
// own outbound transport.
func (b *Bus) Attach(handle int, driver *cannm.Driver) cannm.Transport {
	b.nodes = append(b.nodes, node{handle: handle, driver: driver})
	return &busTransport{bus: b, driver: driver}
}

// deliver broadcasts a frame transmitted on PDU pduID to every other
// attached node's RxIndication, then reports TxConfirmation back to the
// sender for that same PDU id.
func (b *Bus) deliver(pduID int, sender *cannm.Driver, data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)

	for _, n := range b.nodes {
		if n.driver == sender {
			continue
		}
		_ = n.driver.RxIndication(pduID, frame)
	}
	_ = sender.TxConfirmation(pduID, true)
	return nil
}

type busTransport struct {
	bus    *Bus
	driver *cannm.Driver
}

func (t *busTransport) TransmitFrame(pduID int, data []byte) error {
	return t.bus.deliver(pduID, t.driver, data)
}
