// Package telemetry hooks the worker up to Pyroscope for continuous
// profiling.
package telemetry

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig selects which profiles the worker uploads and where they
// go.
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string // for example "http://pyroscope:4040"
	ApplicationName   string // series name the profiles are filed under
	BasicAuthUser     string // set for Grafana Cloud, empty against plain Pyroscope
	BasicAuthPassword string

	// One switch per profile type the SDK can collect.
	ProfileCPU           bool
	ProfileAllocObjects  bool
	ProfileAllocSpace    bool
	ProfileInuseObjects  bool
	ProfileInuseSpace    bool
	ProfileGoroutines    bool
	ProfileMutexCount    bool
	ProfileMutexDuration bool
	ProfileBlockCount    bool
	ProfileBlockDuration bool

	MutexProfileFraction int  // handed to runtime.SetMutexProfileFraction, 5 when zero
	BlockProfileRate     int  // handed to runtime.SetBlockProfileRate, 5 when zero
	DisableGCRuns        bool // skip the forced GC before heap uploads
}

// Profiler wraps the Pyroscope session with lifecycle management. Disabled
// profiling yields a shell whose Stop and IsEnabled still behave.
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	config   ProfilerConfig
	mu       sync.Mutex
	stopped  bool
}

// NewProfiler starts a Pyroscope session uploading the configured profile
// types. Mutex and block profiling additionally flip the runtime collection
// switches, which stay on for the life of the process.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{
		logger: logger,
		config: cfg,
	}

	if !cfg.Enabled {
		logger.Info("Continuous profiling is off")
		return p, nil
	}

	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("server address is required to start profiling")
	}
	if cfg.ApplicationName == "" {
		return nil, fmt.Errorf("application name is required to start profiling")
	}

	if cfg.ProfileMutexCount || cfg.ProfileMutexDuration {
		fraction := cfg.MutexProfileFraction
		if fraction <= 0 {
			fraction = 5
		}
		runtime.SetMutexProfileFraction(fraction)
		logger.Debug("Collecting mutex profiles", zap.Int("fraction", fraction))
	}
	if cfg.ProfileBlockCount || cfg.ProfileBlockDuration {
		rate := cfg.BlockProfileRate
		if rate <= 0 {
			rate = 5
		}
		runtime.SetBlockProfileRate(rate)
		logger.Debug("Collecting block profiles", zap.Int("rate", rate))
	}

	profileTypes := p.enabledProfileTypes()
	if len(profileTypes) == 0 {
		logger.Warn("Profiling is enabled but no profile types are selected")
	}

	// Tag profiles with where they ran; useful once several workers upload
	// under the same application name
	tags := map[string]string{}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		tags["hostname"] = hostname
	}
	if podName := os.Getenv("POD_NAME"); podName != "" {
		tags["pod"] = podName
	}

	pyroscopeCfg := pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          newPyroscopeLogger(logger),
		Tags:            tags,
		ProfileTypes:    profileTypes,
		DisableGCRuns:   cfg.DisableGCRuns,
	}
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPassword != "" {
		pyroscopeCfg.BasicAuthUser = cfg.BasicAuthUser
		pyroscopeCfg.BasicAuthPassword = cfg.BasicAuthPassword
	}

	session, err := pyroscope.Start(pyroscopeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start profiling session: %w", err)
	}
	p.profiler = session

	logger.Info("Profiler started",
		zap.String("server", cfg.ServerAddress),
		zap.String("application", cfg.ApplicationName),
		zap.Int("profile_types", len(profileTypes)),
	)

	return p, nil
}

// enabledProfileTypes maps the config booleans onto the SDK's profile types.
func (p *Profiler) enabledProfileTypes() []pyroscope.ProfileType {
	selections := []struct {
		enabled bool
		profile pyroscope.ProfileType
	}{
		{p.config.ProfileCPU, pyroscope.ProfileCPU},
		{p.config.ProfileAllocObjects, pyroscope.ProfileAllocObjects},
		{p.config.ProfileAllocSpace, pyroscope.ProfileAllocSpace},
		{p.config.ProfileInuseObjects, pyroscope.ProfileInuseObjects},
		{p.config.ProfileInuseSpace, pyroscope.ProfileInuseSpace},
		{p.config.ProfileGoroutines, pyroscope.ProfileGoroutines},
		{p.config.ProfileMutexCount, pyroscope.ProfileMutexCount},
		{p.config.ProfileMutexDuration, pyroscope.ProfileMutexDuration},
		{p.config.ProfileBlockCount, pyroscope.ProfileBlockCount},
		{p.config.ProfileBlockDuration, pyroscope.ProfileBlockDuration},
	}

	var types []pyroscope.ProfileType
	for _, s := range selections {
		if s.enabled {
			types = append(types, s.profile)
		}
	}
	return types
}

// Stop flushes pending profiles and ends the session. Safe to call more
// than once.
//
// The Pyroscope SDK's Stop takes no context, so unlike the tracer and
// meter shutdowns this cannot be bounded from here; the SDK applies its
// own internal timeouts against an unresponsive server.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		p.logger.Debug("Profiler stop called twice")
		return nil
	}
	p.stopped = true

	if p.profiler == nil {
		p.logger.Debug("Profiling was off, nothing to stop")
		return nil
	}

	p.logger.Info("Flushing profiles before shutdown")

	if err := p.profiler.Stop(); err != nil {
		p.logger.Error("Profiler did not stop cleanly", zap.Error(err))
		return fmt.Errorf("failed to stop profiling session: %w", err)
	}

	p.logger.Info("Profiler stopped")
	return nil
}

// IsEnabled reports whether a profiling session is actually running.
func (p *Profiler) IsEnabled() bool {
	return p.config.Enabled && p.profiler != nil
}

// GetConfig returns a copy of the profiler configuration.
func (p *Profiler) GetConfig() ProfilerConfig {
	return p.config
}

// pyroscopeLogger feeds the SDK's own log lines through zap under a named
// logger, so they are filterable like everything else.
type pyroscopeLogger struct {
	sugar *zap.SugaredLogger
}

func newPyroscopeLogger(logger *zap.Logger) pyroscope.Logger {
	return &pyroscopeLogger{sugar: logger.Named("pyroscope").Sugar()}
}

func (l *pyroscopeLogger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *pyroscopeLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *pyroscopeLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
