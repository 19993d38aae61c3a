// neurosonar reads an EEG headset, classifies the wearer's mental state
// every few seconds and turns it into a music-generation prompt.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neurosonar/neurosonar/acquisition"
	"github.com/neurosonar/neurosonar/config"
	"github.com/neurosonar/neurosonar/logging"
	"github.com/neurosonar/neurosonar/pipeline"
	"github.com/neurosonar/neurosonar/prompt"
	"github.com/neurosonar/neurosonar/recorder"
)

var version = "dev"

type runFlags struct {
	configPath string
	simulate   bool
	device     string
	plot       bool
	csvPath    string
	edfPath    string
	mqttBroker string
	logLevel   string
	noColor    bool
}

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		logging.Fatal(err, "neurosonar failed")
	}
}

func newRootCmd() *cobra.Command {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:   "neurosonar",
		Short: "Turn live EEG into music-generation prompts",
		Long: `neurosonar streams an 8-channel EEG headset, removes a resting baseline,
extracts band powers over a rolling window and maps them to a mental state
and a matching music description every update interval.

Without a subcommand it runs the acquisition loop until interrupted.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags)
		},
	}

	f := root.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "JSON config file overlaid on the defaults")
	f.BoolVar(&flags.simulate, "simulate", false, "use a synthetic headset instead of a serial device")
	f.StringVarP(&flags.device, "device", "d", "", "serial device (default: first discovered)")
	f.BoolVar(&flags.plot, "plot", false, "draw channel spectra instead of classifying")
	f.StringVar(&flags.csvPath, "csv", "", "CSV log of corrected samples (default from config)")
	f.StringVar(&flags.edfPath, "edf", "", "also export corrected samples as EDF")
	f.StringVar(&flags.mqttBroker, "mqtt-broker", "", "publish prompts to this MQTT broker, e.g. tcp://localhost:1883")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&flags.noColor, "no-color", false, "disable colored log output")

	root.AddCommand(newDevicesCmd(flags))
	return root
}

func newDevicesCmd(flags *runFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List serial devices an EEG bridge may be attached to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			devices, err := acquisition.NewSerialDriver(cfg.Acquisition).Devices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No devices found.")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintln(out, d)
			}
			return nil
		},
	}
}

// applyFlags overrides config values with the flags the user actually set
func applyFlags(cmd *cobra.Command, flags *runFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("device") {
		cfg.Acquisition.Device = flags.device
	}
	if changed("plot") {
		cfg.Output.ShowPlots = flags.plot
	}
	if changed("csv") {
		cfg.Recording.CSVPath = flags.csvPath
	}
	if changed("edf") {
		cfg.Recording.EDFPath = flags.edfPath
	}
	if changed("mqtt-broker") {
		cfg.Output.MQTT.Broker = flags.mqttBroker
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
}

func run(cmd *cobra.Command, flags *runFlags) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	if flags.noColor {
		logging.DisableColors()
	}

	sessionID := uuid.NewString()
	ctx = logging.ContextWithFields(ctx, logging.Fields{"session": sessionID})
	logger := logging.WithContext(ctx)

	var driver acquisition.Driver = acquisition.NewSerialDriver(cfg.Acquisition)
	if flags.simulate {
		acq := cfg.Acquisition
		synthetic := acquisition.DefaultSyntheticConfig(acq.SampleRate, acq.ChannelCount, acq.BatteryIndex(acq.ChannelCount))
		synthetic.Realtime = true
		driver = &acquisition.SyntheticDriver{Config: synthetic}
		cfg.Acquisition.Device = acquisition.SyntheticDeviceName
	}

	src, name, err := acquisition.OpenFirst(driver, cfg.Acquisition.Device)
	if err != nil {
		return err
	}
	logger.Info("Connected to EEG device", logging.Fields{"device": name})

	rec, err := openRecorders(cfg, src.SampleRate(), sessionID)
	if err != nil {
		src.Stop()
		return err
	}

	consumer, err := openConsumer(cfg, sessionID)
	if err != nil {
		src.Stop()
		rec.Close()
		return err
	}

	loop, err := pipeline.NewLoop(cfg, src, rec, consumer)
	if err != nil {
		src.Stop()
		rec.Close()
		consumer.Close()
		return err
	}
	return loop.Run(ctx)
}

func openRecorders(cfg *config.Config, sampleRate int, sessionID string) (recorder.Recorder, error) {
	var recorders recorder.Multi

	if path := cfg.Recording.CSVPath; path != "" {
		csv, err := recorder.NewCSVRecorder(path)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, csv)
	}

	if path := cfg.Recording.EDFPath; path != "" {
		labels := cfg.Acquisition.ChannelLabels
		if len(labels) == 0 {
			for ch := range cfg.Acquisition.EEGChannels {
				labels = append(labels, fmt.Sprintf("ch%d", ch))
			}
		}

		edf, err := recorder.NewEDFRecorder(path, recorder.EDFOptions{
			SampleRate:  sampleRate,
			Labels:      labels,
			PhysicalMin: cfg.Recording.PhysicalMin,
			PhysicalMax: cfg.Recording.PhysicalMax,
			PatientID:   cfg.Recording.PatientID,
			SessionID:   sessionID,
		})
		if err != nil {
			recorders.Close()
			return nil, err
		}
		recorders = append(recorders, edf)
	}

	return recorders, nil
}

func openConsumer(cfg *config.Config, sessionID string) (prompt.Consumer, error) {
	var consumer prompt.Consumer = prompt.NewWriterConsumer(os.Stdout)

	if cfg.Output.MQTT.Broker != "" {
		mqtt, err := prompt.NewMQTTConsumer(cfg.Output.MQTT, sessionID)
		if err != nil {
			return nil, err
		}
		consumer = prompt.MultiConsumer{consumer, mqtt}
	}

	if cfg.Output.Async {
		consumer = prompt.NewAsyncConsumer(consumer)
	}
	return consumer, nil
}
