// Package cannmconfig loads GlobalConfig and per-channel ChannelConfig from
// a YAML file through spf13/viper, the config library keskad-loco pairs
// with spf13/cobra. Only the file is read; no CLI flags are bound. This
// lives outside the core: spec.md places configuration-file parsing out of
// scope for the core itself, but cmd/cannmctl still needs it to run.
package cannmconfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/cannm/cannm"
)

// FileGlobal mirrors cannm.GlobalConfig with YAML-friendly field names and
// string durations, since viper unmarshals duration strings ("100ms") more
// naturally than raw nanosecond integers.
type FileGlobal struct {
	MainFunctionPeriod      string `mapstructure:"main_function_period"`
	PassiveModeEnabled      bool   `mapstructure:"passive_mode_enabled"`
	RemoteSleepIndEnabled   bool   `mapstructure:"remote_sleep_ind_enabled"`
	StateChangeIndEnabled   bool   `mapstructure:"state_change_ind_enabled"`
	ComUserDataSupport      bool   `mapstructure:"com_user_data_support"`
	UserDataEnabled         bool   `mapstructure:"user_data_enabled"`
	GlobalPnSupport         bool   `mapstructure:"global_pn_support"`
	ImmediateRestartEnabled bool   `mapstructure:"immediate_restart_enabled"`
	CoordinationSyncSupport bool   `mapstructure:"coordination_sync_support"`
	PduRxIndicationEnabled  bool   `mapstructure:"pdu_rx_indication_enabled"`
}

// FileRxBuffer mirrors cannm.RxBuffer.
type FileRxBuffer struct {
	PduID  int `mapstructure:"pdu_id"`
	Length int `mapstructure:"length"`
}

// FileChannel mirrors cannm.ChannelConfig with YAML-friendly names.
type FileChannel struct {
	Channel int  `mapstructure:"channel"`
	NodeID  int  `mapstructure:"node_id"`

	PduNidPosition int `mapstructure:"pdu_nid_position"`
	PduCbvPosition int `mapstructure:"pdu_cbv_position"`
	PduLength      int `mapstructure:"pdu_length"`

	TxPduID int            `mapstructure:"tx_pdu_id"`
	Rx      []FileRxBuffer `mapstructure:"rx"`

	TimeoutTime          string `mapstructure:"timeout_time"`
	MsgCycleTime         string `mapstructure:"msg_cycle_time"`
	MsgCycleOffset       string `mapstructure:"msg_cycle_offset"`
	RepeatMessageTime    string `mapstructure:"repeat_message_time"`
	WaitBusSleepTime     string `mapstructure:"wait_bus_sleep_time"`
	RemoteSleepIndTime   string `mapstructure:"remote_sleep_ind_time"`
	ImmediateNmCycleTime string `mapstructure:"immediate_nm_cycle_time"`
	MsgReducedTime       string `mapstructure:"msg_reduced_time"`

	NodeDetectionEnabled            bool `mapstructure:"node_detection_enabled"`
	ActiveWakeupBitEnabled          bool `mapstructure:"active_wakeup_bit_enabled"`
	BusLoadReductionActive          bool `mapstructure:"bus_load_reduction_active"`
	NodeIDEnabled                   bool `mapstructure:"node_id_enabled"`
	PnHandleMultipleNetworkRequests bool `mapstructure:"pn_handle_multiple_network_requests"`
	ImmediateNmTransmissions        int  `mapstructure:"immediate_nm_transmissions"`
}

// File is the top-level shape of a cannmctl YAML configuration.
type File struct {
	Global   FileGlobal    `mapstructure:"global"`
	Channels []FileChannel `mapstructure:"channels"`
}

// Load reads the YAML file at path via v and returns the resolved
// GlobalConfig and []*ChannelConfig.
func Load(v *viper.Viper, path string) (cannm.GlobalConfig, []*cannm.ChannelConfig, error) {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cannm.GlobalConfig{}, nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return cannm.GlobalConfig{}, nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return resolve(f)
}

func resolve(f File) (cannm.GlobalConfig, []*cannm.ChannelConfig, error) {
	period, err := time.ParseDuration(f.Global.MainFunctionPeriod)
	if err != nil {
		return cannm.GlobalConfig{}, nil, fmt.Errorf("global.main_function_period: %w", err)
	}
	global := cannm.GlobalConfig{
		MainFunctionPeriod:      period,
		PassiveModeEnabled:      f.Global.PassiveModeEnabled,
		RemoteSleepIndEnabled:   f.Global.RemoteSleepIndEnabled,
		StateChangeIndEnabled:   f.Global.StateChangeIndEnabled,
		ComUserDataSupport:      f.Global.ComUserDataSupport,
		UserDataEnabled:         f.Global.UserDataEnabled,
		GlobalPnSupport:         f.Global.GlobalPnSupport,
		ImmediateRestartEnabled: f.Global.ImmediateRestartEnabled,
		CoordinationSyncSupport: f.Global.CoordinationSyncSupport,
		PduRxIndicationEnabled:  f.Global.PduRxIndicationEnabled,
	}

	channels := make([]*cannm.ChannelConfig, 0, len(f.Channels))
	for _, fc := range f.Channels {
		cfg, err := resolveChannel(fc)
		if err != nil {
			return cannm.GlobalConfig{}, nil, err
		}
		channels = append(channels, cfg)
	}
	return global, channels, nil
}

func resolveChannel(fc FileChannel) (*cannm.ChannelConfig, error) {
	durations := map[string]string{
		"timeout_time":            fc.TimeoutTime,
		"msg_cycle_time":          fc.MsgCycleTime,
		"msg_cycle_offset":        fc.MsgCycleOffset,
		"repeat_message_time":     fc.RepeatMessageTime,
		"wait_bus_sleep_time":     fc.WaitBusSleepTime,
		"remote_sleep_ind_time":   fc.RemoteSleepIndTime,
		"immediate_nm_cycle_time": fc.ImmediateNmCycleTime,
		"msg_reduced_time":        fc.MsgReducedTime,
	}
	parsed := make(map[string]time.Duration, len(durations))
	for name, raw := range durations {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %s: %w", fc.Channel, name, err)
		}
		parsed[name] = d
	}

	rx := make([]cannm.RxBuffer, 0, len(fc.Rx))
	for _, r := range fc.Rx {
		rx = append(rx, cannm.RxBuffer{PduID: r.PduID, Length: r.Length})
	}

	return &cannm.ChannelConfig{
		Channel:        fc.Channel,
		NodeID:         byte(fc.NodeID),
		PduNidPosition: fc.PduNidPosition,
		PduCbvPosition: fc.PduCbvPosition,
		PduLength:      fc.PduLength,
		Tx:             cannm.TxBuffer{PduID: fc.TxPduID, Length: fc.PduLength},
		Rx:             rx,

		TimeoutTime:          parsed["timeout_time"],
		MsgCycleTime:         parsed["msg_cycle_time"],
		MsgCycleOffset:       parsed["msg_cycle_offset"],
		RepeatMessageTime:    parsed["repeat_message_time"],
		WaitBusSleepTime:     parsed["wait_bus_sleep_time"],
		RemoteSleepIndTime:   parsed["remote_sleep_ind_time"],
		ImmediateNmCycleTime: parsed["immediate_nm_cycle_time"],
		MsgReducedTime:       parsed["msg_reduced_time"],

		NodeDetectionEnabled:            fc.NodeDetectionEnabled,
		ActiveWakeupBitEnabled:          fc.ActiveWakeupBitEnabled,
		BusLoadReductionActive:          fc.BusLoadReductionActive,
		NodeIDEnabled:                   fc.NodeIDEnabled,
		PnHandleMultipleNetworkRequests: fc.PnHandleMultipleNetworkRequests,
		ImmediateNmTransmissions:        fc.ImmediateNmTransmissions,
	}, nil
}
