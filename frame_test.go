package cannm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrameConfig() *ChannelConfig {
	return &ChannelConfig{
		Channel:        0,
		NodeID:         0x42,
		PduNidPosition: 0,
		PduCbvPosition: 1,
		PduLength:      8,
	}
}

func TestNewInitializedFrame(t *testing.T) {
	cfg := testFrameConfig()
	data := newInitializedFrame(cfg)
	require.Len(t, data, 8)
	assert.Equal(t, byte(0x42), data[0], "NID byte written at Init")
	assert.Equal(t, byte(0x00), data[1], "CBV byte zeroed at Init")
	for _, b := range data[2:] {
		assert.Equal(t, byte(0xFF), b, "user data initialized to 0xFF")
	}
}

func TestSetClearCBVBit(t *testing.T) {
	cfg := testFrameConfig()
	data := newInitializedFrame(cfg)
	view := newFrameView(cfg, data)

	require.NoError(t, view.setCBVBit(BitRepeatMessageRequest))
	assert.Equal(t, byte(1<<BitRepeatMessageRequest), data[1])

	require.NoError(t, view.setCBVBit(BitActiveWakeup))
	assert.Equal(t, byte(1<<BitRepeatMessageRequest|1<<BitActiveWakeup), data[1])

	require.NoError(t, view.clearCBVBit(BitRepeatMessageRequest))
	assert.Equal(t, byte(1<<BitActiveWakeup), data[1])

	require.NoError(t, view.clearCBV())
	assert.Equal(t, byte(0), data[1])
}

func TestReadCBVBit(t *testing.T) {
	cfg := testFrameConfig()
	received := []byte{0x00, 1 << BitRepeatMessageRequest, 0, 0, 0, 0, 0, 0}
	assert.True(t, readCBVBit(cfg, received, BitRepeatMessageRequest))
	assert.False(t, readCBVBit(cfg, received, BitActiveWakeup))
}

func TestUserDataRoundTrip(t *testing.T) {
	cfg := testFrameConfig()
	data := newInitializedFrame(cfg)
	view := newFrameView(cfg, data)

	payload := []byte{1, 2, 3, 4, 5, 6}
	require.NoError(t, view.setUserData(payload))
	assert.Equal(t, payload, view.userData())
}

func TestUserDataTooLargeErrors(t *testing.T) {
	cfg := testFrameConfig()
	data := newInitializedFrame(cfg)
	view := newFrameView(cfg, data)

	err := view.setUserData(make([]byte, 100))
	require.Error(t, err)
	var cnErr *CanNmError
	require.ErrorAs(t, err, &cnErr)
	assert.Equal(t, ReasonOutOfRange, cnErr.Reason())
}

func TestValidateLayoutRejectsBadPositions(t *testing.T) {
	cfg := testFrameConfig()
	cfg.PduNidPosition = 2
	err := cfg.validateLayout()
	require.Error(t, err)
	var cnErr *CanNmError
	require.ErrorAs(t, err, &cnErr)
	assert.Equal(t, ReasonOutOfRange, cnErr.Reason())
}

func TestUserDataOffsetBothFieldsOff(t *testing.T) {
	cfg := &ChannelConfig{PduNidPosition: Off, PduCbvPosition: Off, PduLength: 4}
	assert.Equal(t, 0, cfg.userDataOffset())
	require.NoError(t, cfg.validateLayout())
}
