// Command cannmctl drives a simulated CAN bus for manual exploration and
// smoke-testing of the cannm module, mirroring the shape of rolfl/modbus's
// mbcli tool (one subcommand per driver operation) but built on
// spf13/cobra + spf13/viper, the CLI/config pairing keskad-loco uses.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cannm/cannm"
	"github.com/cannm/cannm/internal/canlog"
	"github.com/cannm/cannm/internal/cannmconfig"
	"github.com/cannm/cannm/internal/simbus"
)

var (
	configPath string
	verbose    bool

	bus      = simbus.New()
	drivers  = map[int]*cannm.Driver{}
	handles  []int
	logger   *canlog.Logger
)

func main() {
	root := &cobra.Command{
		Use:   "cannmctl",
		Short: "Drive a simulated CAN Network Management bus",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadAndInit()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "cannm.yaml", "path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log notifications at debug level")

	root.AddCommand(
		requestCmd(),
		releaseCmd(),
		stateCmd(),
		runCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadAndInit() error {
	v := viper.New()
	global, channels, err := cannmconfig.Load(v, configPath)
	if err != nil {
		return err
	}

	base := logrus.New()
	if verbose {
		base.SetLevel(logrus.DebugLevel)
	}
	logger = canlog.New(base)

	byChannel := map[int][]*cannm.ChannelConfig{}
	for _, cfg := range channels {
		byChannel[cfg.Channel] = append(byChannel[cfg.Channel], cfg)
	}

	for handle, cfgs := range byChannel {
		d := cannm.New()
		d.AttachDevLogger(logger.Channel(handle))
		transport := bus.Attach(handle, d)
		notifier := cannm.NewLoggingNotifier(logger.Channel(handle), nil)
		if err := d.Init(global, cfgs, transport, notifier, nil); err != nil {
			return fmt.Errorf("channel %d: %w", handle, err)
		}
		drivers[handle] = d
		handles = append(handles, handle)
	}
	return nil
}

func driverFor(handle int) (*cannm.Driver, error) {
	d, ok := drivers[handle]
	if !ok {
		return nil, fmt.Errorf("no such channel %d", handle)
	}
	return d, nil
}

func requestCmd() *cobra.Command {
	var handle int
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Issue NetworkRequest on a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := driverFor(handle)
			if err != nil {
				return err
			}
			return d.NetworkRequest(handle)
		},
	}
	cmd.Flags().IntVarP(&handle, "channel", "n", 0, "channel handle")
	return cmd
}

func releaseCmd() *cobra.Command {
	var handle int
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Issue NetworkRelease on a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := driverFor(handle)
			if err != nil {
				return err
			}
			return d.NetworkRelease(handle)
		},
	}
	cmd.Flags().IntVarP(&handle, "channel", "n", 0, "channel handle")
	return cmd
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the State/Mode of every configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, handle := range handles {
				d := drivers[handle]
				state, mode, err := d.GetState(handle)
				if err != nil {
					return err
				}
				fmt.Printf("channel %d: state=%s mode=%s\n", handle, state, mode)
			}
			return nil
		},
	}
	return cmd
}

func runCmd() *cobra.Command {
	var period time.Duration
	var iterations int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tick MainFunction on every channel at a fixed period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for i := 0; iterations == 0 || i < iterations; i++ {
				<-ticker.C
				for _, d := range drivers {
					d.MainFunction()
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&period, "period", 10*time.Millisecond, "tick period, should match main_function_period")
	cmd.Flags().IntVar(&iterations, "iterations", 100, "number of ticks to run, 0 for forever")
	return cmd
}
