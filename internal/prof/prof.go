// Package prof pushes continuous profiles to a Pyroscope server.
package prof

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/smallbiz-web/internal/log"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	Component     string
	Version       string
	Commit        string
	ServerAddress string
	// AuthToken is sent as basic auth password when set.
	AuthToken string
	TenantID  string
	// Tags are added to the build tags derived from the fields above.
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int
}

// tags labels every profile with the build it came from.
func (o Options) tags() map[string]string {
	t := map[string]string{"source": "go-agent"}
	for k, v := range map[string]string{
		"app":       o.AppName,
		"component": o.Component,
		"version":   o.Version,
		"commit":    o.Commit,
	} {
		if v != "" {
			t[k] = v
		}
	}
	for k, v := range o.Tags {
		t[k] = v
	}
	return t
}

// profileTypes are collected on every push. Mutex and block profiles are
// only populated when their runtime rates are set.
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// Start begins profiling and returns an idempotent stop func. The returned
// stop func is never nil, even on error.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	noop := func() {}

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return noop, nil
	}

	if opts.ServerAddress == "" {
		err := xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
		L.Error(ctx, err, "pyroscope options")
		return noop, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	cfg := pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.tags(),
		Logger:          pyroLogger{ctx: ctx, l: L.With("subsystem", "pyroscope")},
		ProfileTypes:    profileTypes,
	}
	if opts.AuthToken != "" {
		cfg.BasicAuthUser = opts.AppName
		cfg.BasicAuthPassword = opts.AuthToken
	}

	profiler, err := pyroscope.Start(cfg)
	if err != nil {
		err = xerrors.Wrapf(err, "start pyroscope for %s", opts.ServerAddress)
		L.Error(ctx, err, "pyroscope start failed", "app_name", opts.AppName)
		return noop, err
	}

	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := profiler.Stop(); err != nil {
				L.Warn(context.Background(), "pyroscope stop failed", "error", err)
				return
			}
			L.Info(context.Background(), "pyroscope stopped", "server_address", opts.ServerAddress)
		})
	}, nil
}

// pyroLogger routes agent messages into the app logger. Agent info output
// is per-upload chatter, so it is logged at debug.
type pyroLogger struct {
	ctx context.Context
	l   log.Logger
}

func (p pyroLogger) Infof(format string, args ...any) {
	p.l.Debug(p.ctx, fmt.Sprintf(format, args...))
}

func (p pyroLogger) Debugf(format string, args ...any) {
	p.l.Debug(p.ctx, fmt.Sprintf(format, args...))
}

func (p pyroLogger) Errorf(format string, args ...any) {
	p.l.Warn(p.ctx, fmt.Sprintf(format, args...))
}
