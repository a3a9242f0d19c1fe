package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-pad/internal/configsvc"
	"github.com/neuroplastio/neio-pad/internal/monitor"
	"github.com/neuroplastio/neio-pad/internal/padsvc"
	"github.com/neuroplastio/neio-pad/padapi"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

type Agent struct {
	config Config
	log    *zap.Logger

	db        *badger.DB
	configSvc *configsvc.Service
	padSvc    *padsvc.Service
	monitor   *monitor.Server
}

type agentDeps struct {
	dig.In

	Log       *zap.Logger
	DB        *badger.DB
	ConfigSvc *configsvc.Service
	PadSvc    *padsvc.Service
	Monitor   *monitor.Server
}

func NewAgent(config Config) (*Agent, error) {
	c := dig.New()
	providers := []any{
		func() Config { return config },
		newLogger,
		openDB,
		newConfigService,
		newBackend,
		newPadService,
		newMonitor,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("failed to provide dependency: %w", err)
		}
	}
	a := &Agent{config: config}
	err := c.Invoke(func(deps agentDeps) {
		a.log = deps.Log
		a.db = deps.DB
		a.configSvc = deps.ConfigSvc
		a.padSvc = deps.PadSvc
		a.monitor = deps.Monitor
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return a, nil
}

func newLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func openDB(config Config, logger *zap.Logger) (*badger.DB, error) {
	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}

	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return db, nil
}

func newConfigService(logger *zap.Logger) (*configsvc.Service, error) {
	return configsvc.New(logger.Named("config"))
}

func newBackend(config Config, logger *zap.Logger) (padapi.Backend, error) {
	reg := padsvc.NewBackendRegistry(logger.Named("backend"))
	return padsvc.NewBackend(reg, config.Backend, config.BackendConfig)
}

func loadProfile(name string) (*padapi.Profile, error) {
	if name == "" {
		return nil, nil
	}
	if p, err := padapi.BuiltinProfile(name); err == nil {
		return p, nil
	}
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("%w: %s is neither a built-in profile %v nor a file", padapi.ErrUnknownProfile, name, padapi.BuiltinProfileNames())
	}
	return padapi.LoadProfile(name)
}

func newPadService(config Config, logger *zap.Logger, db *badger.DB, configSvc *configsvc.Service, backend padapi.Backend) (*padsvc.Service, error) {
	opts := []padsvc.Option{
		padsvc.WithControllers(config.Controllers...),
	}
	if config.TuningConfig != "" {
		opts = append(opts, padsvc.WithTuningPath(config.TuningConfig))
	}
	if config.OpenAll {
		opts = append(opts, padsvc.WithOpenAll())
	}
	profile, err := loadProfile(config.Profile)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		opts = append(opts, padsvc.WithProfile(profile))
	}
	return padsvc.New(db, configSvc, config.Backend, backend, logger.Named("padsvc"), time.Now, opts...), nil
}

func newMonitor(config Config, logger *zap.Logger, padSvc *padsvc.Service) *monitor.Server {
	return monitor.New(logger.Named("monitor"), padSvc, config.MonitorAddr)
}

// Close releases the controllers, the backend and the database.
func (a *Agent) Close() error {
	err := errors.Join(
		a.padSvc.Close(),
		a.db.Close(),
	)
	_ = a.log.Sync()
	return err
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the agent and blocks until the context is cancelled.
// Agent startup will fail if the configuration is not valid.
// In case the tuning file becomes invalid after the startup, it will remain running with the last valid tuning.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.padSvc.Start(groupCtx)
	})
	if a.config.MonitorAddr != "" {
		group.Go(func() error {
			return a.monitor.Start(groupCtx)
		})
	}

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("agent failed: %w", err)
	}
	return nil
}

func (a *Agent) Pads() *padsvc.Service {
	return a.padSvc
}

func (a *Agent) Logger() *zap.Logger {
	return a.log
}
