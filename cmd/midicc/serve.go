package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/leandrodaf/midicc/internal/backend"
	"github.com/leandrodaf/midicc/internal/config"
	"github.com/leandrodaf/midicc/internal/control"
	"github.com/leandrodaf/midicc/internal/store"
	"github.com/leandrodaf/midicc/internal/supervisor"
	"github.com/leandrodaf/midicc/internal/worker"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/leandrodaf/midicc/sdk/midi"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const maxControlConns = 16

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: supervise the worker and serve the control API",
	Long: `Loads the stored settings, starts the worker with them and serves the
control API until interrupted.

The worker is not restarted automatically when it fails. Use
"midicc restart" once the cause (for example a disconnected device) is fixed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Logging.File != "" {
		if err := log.SetDestination(contracts.FileLog, cfg.Logging.File); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	launcher, err := newLauncher(cfg)
	if err != nil {
		return err
	}
	sup := supervisor.New(launcher, supervisor.WithLogger(log))
	cancelSub := sup.Subscribe(func(st contracts.WorkerStatus) {
		log.Info("worker status", log.Field().String("status", st.String()))
	})
	defer cancelSub()

	st := store.New(cfg.SettingsPath, store.WithLogger(log), store.WithApplier(sup))
	svc := backend.New(st, sup, newDeviceLister(), backend.WithLogger(log))

	settings := st.Load(ctx)
	sup.ApplySettings(ctx, settings)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		_ = sup.Close(context.Background())
		return fmt.Errorf("control listener: %w", err)
	}
	log.Info("control API listening", log.Field().String("addr", ln.Addr().String()))
	ln = netutil.LimitListener(ln, maxControlConns)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return control.NewServer(svc, log).Serve(gctx, ln)
	})
	g.Go(func() error {
		if err := os.MkdirAll(filepath.Dir(st.Path()), 0755); err != nil {
			log.Warn("settings directory unavailable, external edits will not be picked up", log.Field().Error("error", err))
			return nil
		}
		if err := st.Watch(gctx); err != nil {
			log.Warn("settings watcher stopped", log.Field().Error("error", err))
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.GetStopTimeout()+2*time.Second)
	defer cancel()
	return multierr.Append(runErr, sup.Close(closeCtx))
}

func newLauncher(cfg *config.Config) (supervisor.Launcher, error) {
	switch cfg.Worker.Launcher {
	case config.LauncherInProcess:
		return &supervisor.InProcessLauncher{
			NewClient:  midi.Factory(contracts.WithLogger(log)),
			Sink:       &worker.VolumeSink{Logger: log},
			Logger:     log,
			ProbeEvery: cfg.Worker.ProbeEvery,
		}, nil
	default:
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating midicc executable: %w", err)
		}
		args := []string{"worker", "--config", configPath}
		if cfg.Logging.File != "" {
			args = append(args, "--log-file", cfg.Logging.File)
		}
		return &supervisor.ExecLauncher{
			Path:         exe,
			Args:         args,
			ProbeEvery:   cfg.Worker.ProbeEvery,
			StartupGrace: cfg.GetStartupGrace(),
			StopTimeout:  cfg.GetStopTimeout(),
			Logger:       log,
		}, nil
	}
}

// deviceLister opens a short-lived MIDI client per enumeration so the daemon
// does not hold a device handle alongside the worker's.
type deviceLister struct {
	newClient func() (contracts.ClientMIDI, error)
}

func newDeviceLister() *deviceLister {
	return &deviceLister{newClient: midi.Factory(contracts.WithLogger(log))}
}

func (d *deviceLister) ListDevices() ([]contracts.DeviceInfo, error) {
	return midi.ListDevices(d.newClient)
}
