package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/leandrodaf/midicc/internal/backend"
	"github.com/leandrodaf/midicc/internal/health"
	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/internal/session"
	"github.com/leandrodaf/midicc/internal/store"
	"github.com/leandrodaf/midicc/internal/supervisor"
	"github.com/leandrodaf/midicc/internal/worker"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/leandrodaf/midicc/sdk/midi"
)

// Runs the whole stack in one process: the worker follows controller 7 on
// channel 1 of the first device, and every status change is printed.
func main() {
	log := logger.NewDevelopmentLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	newClient := midi.Factory(contracts.WithLogger(log))
	sup := supervisor.New(&supervisor.InProcessLauncher{
		NewClient: newClient,
		Sink:      &worker.VolumeSink{Logger: log},
		Logger:    log,
	}, supervisor.WithLogger(log))
	defer sup.Close(context.Background())

	st := store.New(filepath.Join(os.TempDir(), "midicc-example", "settings.toml"),
		store.WithLogger(log), store.WithApplier(sup))
	svc := backend.New(st, sup, lister(newClient), backend.WithLogger(log))

	monitor := health.New(svc, health.WithLogger(log))
	defer monitor.Subscribe(func(s contracts.WorkerStatus) {
		fmt.Println("worker:", s)
	})()

	sess := session.New(svc, session.WithLogger(log), session.WithStatusSink(monitor))
	devices, _, err := sess.Begin(ctx)
	if err != nil {
		log.Error("Failed to load settings", log.Field().Error("error", err))
		return
	}
	fmt.Println("Available MIDI devices:", devices)

	sess.Edit(contracts.FieldDevice, "0")
	sess.Edit(contracts.FieldChannel, "1")
	sess.Edit(contracts.FieldController, "7")
	if _, err := sess.Save(ctx); err != nil {
		log.Error("Failed to save settings", log.Field().Error("error", err))
		return
	}

	fmt.Println("Following controller 7... Press Ctrl+C to exit.")
	_ = monitor.Run(ctx)
}

type lister func() (contracts.ClientMIDI, error)

func (l lister) ListDevices() ([]contracts.DeviceInfo, error) {
	return midi.ListDevices(l)
}
