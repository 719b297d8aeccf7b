package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/leandrodaf/midicc/internal/control"
	"github.com/leandrodaf/midicc/internal/health"
	"github.com/leandrodaf/midicc/internal/session"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List MIDI input devices seen by the daemon",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettings,
}

var setFlags struct {
	device, interval, channel, cc string
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings and restart the worker with them",
	Long: `Loads the current settings, applies the given changes and saves them.
Fields that are not given keep their current value.

Examples:
  midicc set --device 1
  midicc set --interval 50 --channel 2 --cc 11`,
	Args: cobra.NoArgs,
	RunE: runSet,
}

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the worker is running",
	Long: `Prints the worker status. Exit status is 0 when running, 2 when failed and
3 when the status is unknown (for example, the daemon is not reachable).`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the worker with the last applied settings",
	Args:  cobra.NoArgs,
	RunE:  runRestart,
}

func init() {
	setCmd.Flags().StringVar(&setFlags.device, "device", "", "input device index")
	setCmd.Flags().StringVar(&setFlags.interval, "interval", "", "sampling interval in milliseconds")
	setCmd.Flags().StringVar(&setFlags.channel, "channel", "", "MIDI channel (1-16)")
	setCmd.Flags().StringVar(&setFlags.cc, "cc", "", "controller number (0-127)")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "keep watching and print every change")

	rootCmd.AddCommand(devicesCmd, settingsCmd, setCmd, statusCmd, restartCmd)
}

func newBackendClient() *control.Client {
	return control.NewClient(cfg.Listen)
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := newBackendClient().Devices(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(devices) == 0 {
		fmt.Fprintln(out, "no MIDI input devices")
		return nil
	}
	for i, name := range devices {
		fmt.Fprintf(out, "%d\t%s\n", i, name)
	}
	return nil
}

func runSettings(cmd *cobra.Command, args []string) error {
	view, err := newBackendClient().GetSettings(cmd.Context())
	if err != nil {
		return err
	}
	printSettings(cmd.OutOrStdout(), view.Settings, view.Devices)
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	client := newBackendClient()
	monitor := health.New(client, health.WithLogger(log))
	sess := session.New(client, session.WithLogger(log), session.WithStatusSink(monitor))

	// Begin falls back to defaults when the daemon is down; saving those
	// would overwrite the fields the user did not touch.
	if _, err := client.GetError(cmd.Context()); err != nil {
		return err
	}
	if _, _, err := sess.Begin(cmd.Context()); err != nil {
		return err
	}

	edits := []struct{ flag, field, value string }{
		{"device", contracts.FieldDevice, setFlags.device},
		{"interval", contracts.FieldSamplingInterval, setFlags.interval},
		{"channel", contracts.FieldChannel, setFlags.channel},
		{"cc", contracts.FieldController, setFlags.cc},
	}
	changed := false
	for _, e := range edits {
		if cmd.Flags().Changed(e.flag) {
			sess.Edit(e.field, e.value)
			changed = true
		}
	}
	if !changed {
		return fmt.Errorf("nothing to change; see midicc set --help")
	}

	st, err := sess.Save(cmd.Context())
	if err != nil {
		if ve, ok := contracts.IsValidation(err); ok {
			return fmt.Errorf("%s %q: %s", ve.Field, sess.Draft().Raw[ve.Field], ve.Reason)
		}
		return err
	}

	d := sess.Draft()
	printSettings(cmd.OutOrStdout(), d.Base, d.Devices)
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	monitor := health.New(newBackendClient(), health.WithLogger(log), health.WithInterval(cfg.GetHealthInterval()))
	out := cmd.OutOrStdout()

	if !statusWatch {
		st := monitor.Refresh(cmd.Context())
		printStatus(out, st)
		switch st.Display() {
		case contracts.DisplayFailed:
			return &exitError{code: 2, err: fmt.Errorf("worker failed")}
		case contracts.DisplayLoading:
			return &exitError{code: 3, err: fmt.Errorf("worker status unknown")}
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer monitor.Subscribe(func(st contracts.WorkerStatus) { printStatus(out, st) })()
	if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	monitor := health.New(newBackendClient(), health.WithLogger(log))
	out := cmd.OutOrStdout()
	defer monitor.Subscribe(func(st contracts.WorkerStatus) { printStatus(out, st) })()

	_, err := monitor.RequestRestart(context.WithoutCancel(cmd.Context()))
	return err
}

func printSettings(w io.Writer, s contracts.Settings, devices contracts.DeviceList) {
	device := s.Device.Name
	if device == "" && s.Device.Index >= 0 && s.Device.Index < len(devices) {
		device = devices[s.Device.Index]
	}
	if device == "" {
		device = "(not connected)"
	}
	fmt.Fprintf(w, "device:   %d %s\n", s.Device.Index, device)
	fmt.Fprintf(w, "interval: %dms\n", s.SamplingIntervalMs)
	fmt.Fprintf(w, "channel:  %d\n", s.Channel)
	fmt.Fprintf(w, "cc:       %d\n", s.Controller)
}

func printStatus(w io.Writer, st contracts.WorkerStatus) {
	switch st.Display() {
	case contracts.DisplayRunning:
		fmt.Fprintln(w, "worker: running")
	case contracts.DisplayFailed:
		fmt.Fprintf(w, "worker: failed: %s\n", st.Reason)
		fmt.Fprintln(w, "        run \"midicc restart\" to try again")
	default:
		fmt.Fprintln(w, "worker: waiting for status...")
	}
}
