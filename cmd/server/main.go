// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	_ "serial-gateway/docs"
	"serial-gateway/internal/config"
	"serial-gateway/internal/database"
	"serial-gateway/internal/driver"
	"serial-gateway/internal/handler"
	"serial-gateway/internal/repository"
	"serial-gateway/internal/routes"
	"serial-gateway/internal/server"
	"serial-gateway/internal/service"
	"serial-gateway/internal/session"
	"serial-gateway/internal/utils"
)

const (
	journalQueueSize = 1000
	startupTimeout   = 10 * time.Second
	shutdownTimeout  = 30 * time.Second
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	database *database.DB

	driverRegistry *driver.Registry
	sessions       *session.Registry
	eventBus       *handler.EventBus
	eventRepo      repository.SessionEventRepository
	recorder       *repository.Recorder
	portService    *service.PortService
	gatewayHandler *handler.GatewayHandler

	listener  *server.TCPListener
	gateway   *server.Controller
	wsGateway *server.Controller
	wsQueue   *server.ChannelListener

	monitor         *http.Server
	monitorListener net.Listener
}

// @title Serial Gateway Monitor API
// @version 1.0.0
// @description Read-only monitor of the serial gateway: ports, sessions and session events

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8084
// @BasePath /
func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	app, err := NewApplication(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}

	if err := app.Start(); err != nil {
		app.logger.Error("Gateway stopped with error", zap.Error(err))
		utils.CloseLogger(app.logger)
		return 1
	}
	return 0
}

// NewApplication creates a new application instance. The gateway listener
// is bound before it returns.
func NewApplication(args []string) (*Application, error) {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "serial-gateway")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg.Server)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDriverRegistry(); err != nil {
		return nil, fmt.Errorf("failed to initialize driver registry: %w", err)
	}

	app.eventBus = handler.NewEventBus(cfg.Monitor.EventHistory, logger)
	go app.eventBus.Start()

	if err := app.initializeJournal(); err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServers(); err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize servers: %w", err)
	}

	return app, nil
}

// initializeDriverRegistry registers the drivers and creates the configured one
func (app *Application) initializeDriverRegistry() error {
	app.driverRegistry = driver.NewRegistry(app.logger)
	driver.RegisterDefaultDrivers(app.driverRegistry, app.logger)

	app.logger.Debug("Driver registry initialized",
		zap.Strings("registered_drivers", app.driverRegistry.ListDrivers()),
		zap.String("selected", app.config.Device.Driver),
	)
	return nil
}

// initializeJournal connects the session journal when enabled and runs the
// embedded migrations
func (app *Application) initializeJournal() error {
	if !app.config.Journal.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	db, err := database.NewConnection(ctx, app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	if version, dirty, err := migrator.Version(); err == nil {
		app.logger.Info("Journal schema ready", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	if _, err := migrator.RunCleanup(); err != nil {
		app.logger.Warn("Journal cleanup failed", zap.Error(err))
	}

	app.eventRepo = repository.NewSessionEventRepository(db, app.logger)
	app.recorder = repository.NewRecorder(app.eventRepo, app.config.Journal.Retention, app.logger)

	app.logger.Info("Session journal initialized")
	return nil
}

// initializeServices creates the session registry and the port service
func (app *Application) initializeServices() error {
	portDriver, err := app.driverRegistry.CreateDriver(&app.config.Device)
	if err != nil {
		return err
	}

	app.sessions = session.NewRegistry(app.logger)
	app.portService = service.NewPortService(
		portDriver,
		app.sessions,
		app.eventBus,
		service.Options{
			MaxReadSize:    app.config.Device.MaxReadSize,
			ReadTimeout:    app.config.Device.ReadTimeout,
			MaxReadTimeout: app.config.Device.MaxReadTimeout,
		},
		app.logger,
	)
	app.gatewayHandler = handler.NewGatewayHandler(app.portService, app.logger)
	return nil
}

// initializeServers binds the gateway listener and, when enabled, the monitor
func (app *Application) initializeServers() error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	listener, err := server.Listen(ctx, app.config.GetServerAddr())
	if err != nil {
		return err
	}
	app.listener = listener
	app.gateway = server.NewController("tcp", app.config.Server.MaxClients,
		app.gatewayHandler.NewDispatcher(), app.logger)

	if !app.config.Monitor.Enabled {
		return nil
	}

	monitorListener, err := net.Listen("tcp", app.config.GetMonitorAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.config.GetMonitorAddr(), err)
	}
	app.monitorListener = monitorListener

	app.wsQueue = server.NewChannelListener(monitorListener.Addr())
	app.wsGateway = server.NewController("websocket", app.config.Server.MaxClients,
		app.gatewayHandler.NewDispatcher(), app.logger)

	controllers := []*server.Controller{app.gateway, app.wsGateway}
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		handler.NewHealthHandler(app.database, app.portService, controllers, app.config, app.logger),
		handler.NewSessionHandler(app.portService, app.eventBus, app.eventRepo, app.logger),
		handler.NewWebSocketHandler(app.wsQueue, app.eventBus, app.config.Monitor.AllowedOrigins, app.logger),
	)

	app.monitor = &http.Server{
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Monitor.ReadTimeout,
		WriteTimeout: app.config.Monitor.WriteTimeout,
		IdleTimeout:  app.config.Monitor.IdleTimeout,
	}

	app.logger.Info("Monitor initialized", zap.String("address", monitorListener.Addr().String()))
	return nil
}

// Start serves until SIGINT or SIGTERM, then shuts down
func (app *Application) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.writeID(); err != nil {
		app.shutdown()
		return err
	}

	recorderDone := make(chan struct{})
	if app.recorder != nil {
		events := app.eventBus.SubscribeBuffered(journalQueueSize)
		go func() {
			defer close(recorderDone)
			app.recorder.Run(context.Background(), events)
		}()
	} else {
		close(recorderDone)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- app.gateway.Serve(ctx, app.listener)
	}()

	if app.monitor != nil {
		go func() {
			errCh <- app.wsGateway.Serve(ctx, app.wsQueue)
		}()
		go func() {
			if err := app.monitor.Serve(app.monitorListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Error("Monitor stopped", zap.Error(err))
			}
		}()
	}

	app.logger.Info("Gateway started",
		zap.String("address", app.listener.Host()),
		zap.Int("port", app.listener.Port()),
		zap.Int("max_clients", app.config.Server.MaxClients),
	)

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Received shutdown signal")
	case runErr = <-errCh:
	}
	stop()

	app.shutdown()
	<-recorderDone

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		}
	}

	utils.NewServiceLogger(app.logger, "serial-gateway").LogServiceStop("shutdown completed")
	utils.CloseLogger(app.logger)
	return runErr
}

// writeID reports "pid:address:port" to the id file or standard output
func (app *Application) writeID() error {
	line := fmt.Sprintf("%d:%s:%d\n", os.Getpid(), app.listener.Host(), app.listener.Port())

	if app.config.Server.IDFile == "" {
		_, err := os.Stdout.WriteString(line)
		return err
	}
	if err := os.WriteFile(app.config.Server.IDFile, []byte(line), 0644); err != nil {
		return fmt.Errorf("failed to write id file: %w", err)
	}
	return nil
}

// shutdown stops accepting, ends every connection and closes every session.
// The listeners are closed by the controllers once ctx is cancelled.
func (app *Application) shutdown() {
	if app.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := app.monitor.Shutdown(ctx); err != nil {
			app.logger.Error("Monitor shutdown error", zap.Error(err))
		}
		cancel()
		app.wsQueue.Close()
	}

	app.listener.Close()
	for _, controller := range []*server.Controller{app.gateway, app.wsGateway} {
		if controller == nil {
			continue
		}
		controller.CloseConnections()
		controller.Wait()
	}

	app.portService.Shutdown()
	app.eventBus.Stop()
}

// close releases what NewApplication acquired before a failure
func (app *Application) close() {
	if app.listener != nil {
		app.listener.Close()
	}
	app.eventBus.Stop()
	if app.database != nil {
		app.database.Close()
	}
	utils.CloseLogger(app.logger)
}
