package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilievs/panelagent/api"
	"github.com/ilievs/panelagent/command"
	"github.com/ilievs/panelagent/config"
	"github.com/ilievs/panelagent/core"
	"github.com/ilievs/panelagent/dispatch"
	"github.com/ilievs/panelagent/hardware"
	"github.com/ilievs/panelagent/monitor"
	"github.com/ilievs/panelagent/mqtt"
)

const (
	dispatchBuffer  = 64
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// serverConnection is a core.ServerConnection with a lifecycle.
type serverConnection interface {
	core.ServerConnection
	Close(ctx context.Context) error
}

type inlineConnection struct {
	*mqtt.InlineConnection
}

func (c inlineConnection) Close(ctx context.Context) error {
	return c.InlineConnection.Close()
}

type Application struct {
	logger *slog.Logger
	level  *slog.LevelVar
	loop   *dispatch.Loop

	broker   *mqtt.Broker
	conn     serverConnection
	monitors *core.BasicMonitorManager
	log      *command.Log
	api      *api.Server
}

func RunApplication(ctx context.Context, configPath string) error {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	app := &Application{
		logger:   logger,
		level:    level,
		loop:     dispatch.NewLoop(dispatchBuffer),
		monitors: core.NewBasicMonitorManager(),
	}
	app.loop.Start()
	defer app.loop.Stop()

	cfg, err := config.Watch(configPath, logger, app.applyConfig)
	if err != nil {
		return err
	}
	app.setLevel(cfg.LogLevel)

	if err := app.connect(ctx, cfg); err != nil {
		app.close()
		return err
	}
	app.addMonitors(cfg)

	if err := app.loop.Call(ctx, func() { app.monitors.UpdateFromPreferences(cfg.Prefs()) }); err != nil {
		app.close()
		return fmt.Errorf("failed to apply preferences: %w", err)
	}

	app.api = api.NewServer(app.loop, app.monitors, app.log, logger)
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- app.api.Start(cfg.HTTP.Address)
	}()

	logger.Info("panelagent running", "monitors", app.monitors.ListMonitors())

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-apiErr:
		if err != nil {
			err = fmt.Errorf("http api failed: %w", err)
		}
	}

	app.close()
	return err
}

func (a *Application) connect(ctx context.Context, cfg *config.Config) error {
	if cfg.Broker.Enabled {
		users := make([]mqtt.User, 0, len(cfg.Broker.Users))
		for _, u := range cfg.Broker.Users {
			users = append(users, mqtt.User{Username: u.Username, Password: u.Password})
		}
		a.broker = mqtt.NewBroker(mqtt.BrokerOptions{
			Address:     cfg.Broker.Address,
			TopicPrefix: cfg.Server.TopicPrefix,
			Users:       users,
		}, a.logger)
		if err := a.broker.Start(); err != nil {
			return fmt.Errorf("failed to start broker: %w", err)
		}
	}

	if cfg.Server.URL == "" {
		inline := mqtt.NewInlineConnection(a.broker.Server(), cfg.Server.TopicPrefix, a.logger)
		if err := inline.Start(); err != nil {
			return fmt.Errorf("failed to subscribe inline client: %w", err)
		}
		a.conn = inlineConnection{inline}
		return nil
	}

	remote := mqtt.NewConnection(mqtt.ConnectionConfig{
		URL:         cfg.Server.URL,
		ClientID:    cfg.Server.ClientID,
		Username:    cfg.Server.Username,
		Password:    cfg.Server.Password,
		TopicPrefix: cfg.Server.TopicPrefix,
		KeepAlive:   cfg.Server.KeepAlive,
	}, a.logger)
	if err := remote.Start(ctx); err != nil {
		return err
	}
	a.conn = remote

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := remote.AwaitConnection(waitCtx); err != nil {
		a.logger.Warn("server not reachable yet, continuing in background", "url", cfg.Server.URL, "error", err)
	}
	return nil
}

func (a *Application) addMonitors(cfg *config.Config) {
	hw := cfg.Hardware
	var battery monitor.BatterySource = hardware.NewSystemBattery()
	if hw.PowerSupplyPath != "" {
		battery = hardware.NewSysfsBattery(hw.PowerSupplyPath)
	}
	power := hardware.NewPowerWatcher(battery, hw.PowerWatchInterval, a.logger)
	a.monitors.AddMonitor("battery", monitor.NewBatteryMonitor(a.conn, battery, power, a.logger))

	camera := hardware.NewStreamCamera(hw.CameraDevice, hw.CameraWidth, hw.CameraHeight, a.logger)
	a.monitors.AddMonitor("motion", monitor.NewMotionMonitor(a.conn, camera, a.logger))

	if hw.TemperatureEnabled {
		a.monitors.AddMonitor("temperature", monitor.NewTemperatureMonitor(a.conn, hardware.SensorTemperature{}, a.logger))
	}

	a.log = command.NewLog(a.loop, cfg.CommandLog.MaxEntries)
	queue := command.NewQueue(a.conn, a.log, a.logger, command.UpdateItemsHandler{Monitors: a.monitors})
	a.monitors.AddMonitor("commands", queue)
}

// applyConfig runs on the watcher goroutine for every valid config change.
func (a *Application) applyConfig(cfg *config.Config) {
	a.loop.Post(func() {
		a.setLevel(cfg.LogLevel)
		a.monitors.UpdateFromPreferences(cfg.Prefs())
	})
}

func (a *Application) setLevel(level string) {
	if err := a.level.UnmarshalText([]byte(level)); err != nil {
		a.logger.Warn("invalid log level", "level", level, "error", err)
	}
}

func (a *Application) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.api != nil {
		if err := a.api.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to stop http api", "error", err)
		}
	}

	if err := a.loop.Call(ctx, a.monitors.Terminate); err != nil && !errors.Is(err, dispatch.ErrStopped) {
		a.logger.Warn("failed to terminate monitors", "error", err)
	}

	if a.conn != nil {
		if err := a.conn.Close(ctx); err != nil {
			a.logger.Warn("failed to close server connection", "error", err)
		}
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warn("failed to stop broker", "error", err)
		}
	}
}
