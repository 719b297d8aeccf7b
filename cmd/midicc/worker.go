package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leandrodaf/midicc/internal/worker"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/leandrodaf/midicc/sdk/midi"
	"github.com/spf13/cobra"
)

var workerFlags struct {
	device     int
	deviceName string
	interval   int
	channel    int
	cc         int
	probeEvery int
	logFile    string
}

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a single worker instance (started by the daemon)",
	Hidden: true,
	Long: `Opens the MIDI device, samples the configured controller and applies it
to the system volume until terminated.

On failure the diagnostic is written as the last line on stderr and the
process exits with status 1. The daemon reports that line verbatim.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	d := contracts.DefaultSettings()
	f := workerCmd.Flags()
	f.IntVar(&workerFlags.device, "device", d.Device.Index, "input device index")
	f.StringVar(&workerFlags.deviceName, "device-name", "", "input device name, preferred over --device when present")
	f.IntVar(&workerFlags.interval, "interval", d.SamplingIntervalMs, "sampling interval in milliseconds")
	f.IntVar(&workerFlags.channel, "channel", d.Channel, "MIDI channel (1-16)")
	f.IntVar(&workerFlags.cc, "cc", d.Controller, "controller number (0-127)")
	f.IntVar(&workerFlags.probeEvery, "probe-every", 0, "check the device is still attached every N samples")
	f.StringVar(&workerFlags.logFile, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	settings := contracts.Settings{
		SamplingIntervalMs: workerFlags.interval,
		Device:             contracts.DeviceRef{Index: workerFlags.device, Name: workerFlags.deviceName},
		Channel:            workerFlags.channel,
		Controller:         workerFlags.cc,
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if workerFlags.logFile != "" {
		if err := log.SetDestination(contracts.FileLog, workerFlags.logFile); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := midi.NewMIDIClient(contracts.WithLogger(log))
	if err != nil {
		return err
	}

	opts := []worker.Option{worker.WithLogger(log)}
	if workerFlags.probeEvery > 0 {
		opts = append(opts, worker.WithProbeEvery(workerFlags.probeEvery))
	}
	w := worker.New(client, settings, &worker.VolumeSink{Logger: log}, opts...)
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return err
	}

	return w.Run(ctx)
}
