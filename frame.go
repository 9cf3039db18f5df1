package cannm

/*
This file contains the routines for reading and writing fields of the
fixed-length CAN NM frame: the node-id byte, the control-bit-vector byte,
and the user-data region.
*/

// Off is the sentinel used for PduNidPosition / PduCbvPosition when that
// field is not present in the frame.
const Off = -1

// Control-bit-vector bit positions (spec.md §4.2).
const (
	BitRepeatMessageRequest    = 0
	BitCoordinatorSleepReady   = 3
	BitActiveWakeup            = 4
	BitPartialNetworkInfo      = 5
)

// frameView wraps a frame buffer with bounds-checked field accessors,
// generalizing the teacher's dataReader.canRead cursor idiom (codec.go) to
// fixed byte-position access instead of variable-length cursor reads.
type frameView struct {
	cfg  *ChannelConfig
	data []byte
}

func newFrameView(cfg *ChannelConfig, data []byte) *frameView {
	return &frameView{cfg: cfg, data: data}
}

func (f *frameView) canAccess(pos int) error {
	if pos < 0 {
		return errOutOfRange("field not configured for this frame")
	}
	if pos >= len(f.data) {
		return errOutOfRange("position %d beyond end of %d byte frame", pos, len(f.data))
	}
	return nil
}

func (f *frameView) setNID(nid byte) error {
	if err := f.canAccess(f.cfg.PduNidPosition); err != nil {
		return err
	}
	f.data[f.cfg.PduNidPosition] = nid
	return nil
}

func (f *frameView) nid() (byte, error) {
	if err := f.canAccess(f.cfg.PduNidPosition); err != nil {
		return 0, err
	}
	return f.data[f.cfg.PduNidPosition], nil
}

// setCBVBit ORs the given bit into the CBV byte.
func (f *frameView) setCBVBit(bit uint) error {
	if err := f.canAccess(f.cfg.PduCbvPosition); err != nil {
		return err
	}
	f.data[f.cfg.PduCbvPosition] |= 1 << bit
	return nil
}

// clearCBVBit AND-NOTs the given bit out of the CBV byte.
func (f *frameView) clearCBVBit(bit uint) error {
	if err := f.canAccess(f.cfg.PduCbvPosition); err != nil {
		return err
	}
	f.data[f.cfg.PduCbvPosition] &^= 1 << bit
	return nil
}

// readCBVBit tests a bit of the CBV byte, for use against a just-received
// frame rather than the channel's own TX buffer.
func readCBVBit(cfg *ChannelConfig, received []byte, bit uint) bool {
	if cfg.PduCbvPosition == Off || cfg.PduCbvPosition >= len(received) {
		return false
	}
	return received[cfg.PduCbvPosition]&(1<<bit) != 0
}

// clearCBV zeroes the whole CBV byte.
func (f *frameView) clearCBV() error {
	if err := f.canAccess(f.cfg.PduCbvPosition); err != nil {
		return err
	}
	f.data[f.cfg.PduCbvPosition] = 0x00
	return nil
}

// userDataOffset returns the index of the first user-data byte, per
// spec.md §4.2: NID (if present) then CBV (if present) are assumed to
// occupy bytes 0 and 1 respectively. validateLayout enforces this
// assumption at Init rather than silently miscomputing the offset.
func (cfg *ChannelConfig) userDataOffset() int {
	offset := 0
	if cfg.PduNidPosition != Off {
		offset++
	}
	if cfg.PduCbvPosition != Off {
		offset++
	}
	return offset
}

// validateLayout asserts the "NID at 0, CBV right after it" simplifying
// assumption (CBV at byte 1, or byte 0 without a NID) that userDataOffset
// relies on, which spec.md §9 flags as a potential off-by-one risk if left
// unchecked.
func (cfg *ChannelConfig) validateLayout() error {
	if cfg.PduNidPosition != Off && cfg.PduNidPosition != 0 {
		return errOutOfRange("channel %d: PduNidPosition must be 0 when configured, got %d", cfg.Channel, cfg.PduNidPosition)
	}
	if want := cfg.userDataOffset() - 1; cfg.PduCbvPosition != Off && cfg.PduCbvPosition != want {
		return errOutOfRange("channel %d: PduCbvPosition must be %d when configured, got %d", cfg.Channel, want, cfg.PduCbvPosition)
	}
	if cfg.PduLength < cfg.userDataOffset() {
		return errOutOfRange("channel %d: PduLength %d too short for configured NID/CBV fields", cfg.Channel, cfg.PduLength)
	}
	return nil
}

// setUserData copies src into the user-data region of the frame, failing
// if it doesn't fit.
func (f *frameView) setUserData(src []byte) error {
	offset := f.cfg.userDataOffset()
	if offset+len(src) > len(f.data) {
		return errOutOfRange("user data of %d bytes does not fit at offset %d in %d byte frame", len(src), offset, len(f.data))
	}
	copy(f.data[offset:], src)
	return nil
}

// userData returns a copy of the user-data region.
func (f *frameView) userData() []byte {
	offset := f.cfg.userDataOffset()
	if offset >= len(f.data) {
		return nil
	}
	out := make([]byte, len(f.data)-offset)
	copy(out, f.data[offset:])
	return out
}

// newInitializedFrame builds a frame buffer in the Init-time state: user
// data 0xFF, CBV byte zeroed, NID byte written (spec.md §3 lifecycle rule).
func newInitializedFrame(cfg *ChannelConfig) []byte {
	data := make([]byte, cfg.PduLength)
	for i := range data {
		data[i] = 0xFF
	}
	view := newFrameView(cfg, data)
	if cfg.PduNidPosition != Off {
		data[cfg.PduNidPosition] = 0x00
	}
	if cfg.PduCbvPosition != Off {
		_ = view.clearCBV()
	}
	if cfg.PduNidPosition != Off {
		_ = view.setNID(cfg.NodeID)
	}
	return data
}
