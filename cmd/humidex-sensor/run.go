package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/humidex-sensor/internal/binding"
	"github.com/sweeney/humidex-sensor/internal/config"
	"github.com/sweeney/humidex-sensor/internal/logic"
	"github.com/sweeney/humidex-sensor/internal/metrics"
	"github.com/sweeney/humidex-sensor/internal/mqtt"
	"github.com/sweeney/humidex-sensor/internal/registry"
	"github.com/sweeney/humidex-sensor/internal/source"
	"github.com/sweeney/humidex-sensor/internal/status"
	"github.com/sweeney/humidex-sensor/internal/web"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the humidex daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer log.Sync()

	clock := clockwork.NewRealClock()

	repo, err := registry.OpenSQLite(cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	manager := registry.NewManager(repo, clock, log.Named("registry"))
	if _, err := manager.ImportLegacy(ctx, cfg.LegacySensors); err != nil {
		return fmt.Errorf("import legacy sensors: %w", err)
	}

	m := metrics.NewMetrics()
	store := source.NewStore()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(clock, status.Config{
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		StatePrefix:  cfg.MQTT.StatePrefix,
		OutputPrefix: cfg.MQTT.OutputPrefix,
		FallbackUnit: string(cfg.Fallback()),
		Database:     cfg.Database,
	})

	client, err := mqtt.NewRealClient(cfg.MQTTOptions(), store, log.Named("mqtt"), m, clock)
	if err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	defer client.Close()
	tracker.SetMQTTConnected(client.IsConnected())

	supervisor := binding.NewSupervisor(client, binding.Deps{
		Engine:   logic.NewEngine(cfg.Fallback()),
		Source:   store,
		Observer: tracker,
		Logger:   log.Named("binding"),
		Metrics:  m,
		Clock:    clock,
	})

	d := &daemon{
		manager:    manager,
		supervisor: supervisor,
		publisher:  client,
		mqttStatus: client,
		tracker:    tracker,
		logger:     log,
		clock:      clock,
		heartbeat:  cfg.Heartbeat,
	}
	d.lastHeartbeat = clock.Now()
	if err := d.sync(ctx); err != nil {
		return err
	}

	// Publish startup event with full status snapshot
	d.publishStatus("STARTUP", "")

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, nil)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	log.Infow("started",
		"broker", cfg.MQTT.Broker,
		"statestream", cfg.MQTT.StatePrefix,
		"registrations", supervisor.Len(),
		"sync_interval", cfg.SyncInterval,
		"heartbeat", cfg.Heartbeat)

	ticker := clock.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(ctx, ticker.Chan(), sigCh)
}

// daemon ties the registration store to the running bindings.
type daemon struct {
	manager    *registry.Manager
	supervisor *binding.Supervisor
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	logger     *zap.SugaredLogger
	clock      clockwork.Clock

	heartbeat     time.Duration
	lastHeartbeat time.Time
}

// sync reloads registrations and reconciles the running bindings.
func (d *daemon) sync(ctx context.Context) error {
	entries, err := d.manager.List(ctx)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}

	d.supervisor.Sync(entries)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	d.tracker.Retain(ids)
	return nil
}

func (d *daemon) runLoop(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			d.logger.Infow("shutting down", "signal", s.String())
			d.shutdown(signalName(s))
			return nil

		case <-ctx.Done():
			d.shutdown("CONTEXT")
			return nil

		case <-tick:
			if err := d.sync(ctx); err != nil {
				d.logger.Errorw("sync registrations failed", "error", err)
			}
			if d.mqttStatus != nil {
				d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			}

			now := d.clock.Now()
			if d.heartbeat > 0 && now.Sub(d.lastHeartbeat) >= d.heartbeat {
				d.lastHeartbeat = now
				d.publishStatus("HEARTBEAT", "")
			}
		}
	}
}

// shutdown marks every derived entity offline, then announces SHUTDOWN.
func (d *daemon) shutdown(reason string) {
	d.supervisor.StopAll()
	d.publishStatus("SHUTDOWN", reason)
}

// publishStatus sends a retained system event carrying the status snapshot.
// Heartbeats are not retained.
func (d *daemon) publishStatus(event, reason string) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()

	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.logger.Warnw("failed to publish system event", "event", event, "error", err)
		return
	}
	d.logger.Debugw("published system event", "event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
