package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/smallbiz-web/internal/adminhttp"
	"github.com/keithlinneman/smallbiz-web/internal/auth"
	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
	"github.com/keithlinneman/smallbiz-web/internal/cfg"
	"github.com/keithlinneman/smallbiz-web/internal/content"
	"github.com/keithlinneman/smallbiz-web/internal/health"
	"github.com/keithlinneman/smallbiz-web/internal/httpmw"
	"github.com/keithlinneman/smallbiz-web/internal/media"
	"github.com/keithlinneman/smallbiz-web/internal/opshttp"
	"github.com/keithlinneman/smallbiz-web/internal/ratelimit"
	"github.com/keithlinneman/smallbiz-web/internal/sitehandler"
	"github.com/keithlinneman/smallbiz-web/internal/webassets"

	"github.com/keithlinneman/smallbiz-web/internal/httpserver"
	"github.com/keithlinneman/smallbiz-web/internal/log"
	"github.com/keithlinneman/smallbiz-web/internal/metrics"
	"github.com/keithlinneman/smallbiz-web/internal/otelx"
	"github.com/keithlinneman/smallbiz-web/internal/prof"
	v "github.com/keithlinneman/smallbiz-web/internal/version"
)

const envPrefix = "SITE_"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	// .env is for local development; a missing file is fine
	if err := cfg.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, "ignoring unreadable .env:", err)
	}

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.App, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, envPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Commit:          vi.Commit,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JSON:            conf.LogJSON,
		ErrorLinks:      conf.IncludeErrorLinks,
		MaxErrorLinks:   conf.MaxErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", v.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application", append(vi.LogFields(),
		"environment", conf.Environment,
		"timezone", conf.Timezone,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
		"content_file", conf.ContentFile,
		"blob_bucket", conf.BlobBucket,
		"blob_prefix", conf.BlobPrefix,
		"blob_endpoint", conf.BlobEndpoint,
		"trusted_proxy_hops", conf.TrustedProxyHops,
	)...)

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		L.Error(ctx, err, "invalid timezone", "timezone", conf.Timezone)
		os.Exit(1)
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, v.Component, vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		Component:     v.Component,
		Version:       vi.Version,
		Commit:        vi.ShortCommit(),
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer func() { stopProf() }()

	// Insecure because the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:     conf.EnableTracing,
		Endpoint:    conf.OTLPEndpoint,
		Insecure:    true,
		Sample:      conf.TraceSample,
		Service:     v.AppName,
		Component:   v.Component,
		Version:     vi.Version,
		Environment: conf.Environment,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// AWS is only needed for blob storage or an SSM-held admin password
	var awsCfg aws.Config
	if conf.BlobConfigured() || conf.AdminPasswordSSMParam != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
	}

	var blobs blobstore.Store
	var imgOrigins []string
	if conf.BlobConfigured() {
		s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if conf.BlobEndpoint != "" {
				o.BaseEndpoint = aws.String(conf.BlobEndpoint)
			}
			o.UsePathStyle = conf.BlobPathStyle
		})
		s3Store, err := blobstore.NewS3Store(blobstore.S3Options{
			Client:        s3Client,
			Bucket:        conf.BlobBucket,
			Prefix:        conf.BlobPrefix,
			PublicBaseURL: conf.BlobPublicURL,
			Endpoint:      conf.BlobEndpoint,
			Region:        awsCfg.Region,
			PublicRead:    conf.BlobPublicRead,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create blob store")
			os.Exit(1)
		}
		blobs = s3Store
		if o := originOf(s3Store.URL("")); o != "" {
			imgOrigins = append(imgOrigins, o)
		}
		L.Info(ctx, "blob storage configured", "bucket", s3Store.Bucket(), "public_origin", imgOrigins)
	} else {
		L.Info(ctx, "no blob bucket configured, content is stored in the local file and uploads are disabled")
	}

	// The content file is the store in file mode and the fallback in blob mode
	created, err := content.EnsureSeedFile(conf.ContentFile, webassets.SeedContent())
	if err != nil {
		L.Error(ctx, err, "failed to prepare content file", "path", conf.ContentFile)
		os.Exit(1)
	}
	if created {
		L.Info(ctx, "wrote initial content file from embedded seed", "path", conf.ContentFile)
	}

	store, err := content.NewStore(content.Options{
		Logger:     L.With("subsystem", "content"),
		Metrics:    m,
		SeedPath:   conf.ContentFile,
		Blobs:      blobs,
		ContentKey: conf.ContentKey,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create content store")
		os.Exit(1)
	}
	m.SetContentBackend(string(store.Backend()))
	if _, err := store.GetContent(ctx); err != nil {
		// not fatal, readiness stays red until a load succeeds
		L.Error(ctx, err, "initial content load failed")
	}

	secret := conf.AdminPassword
	if conf.AdminPasswordSSMParam != "" {
		secret, err = auth.LoadSecretFromSSM(ctx, ssm.NewFromConfig(awsCfg), conf.AdminPasswordSSMParam)
		if err != nil {
			L.Error(ctx, err, "failed to load admin password", "ssm_param", conf.AdminPasswordSSMParam)
			os.Exit(1)
		}
	}
	authenticator := auth.New(auth.Options{Secret: secret, Secure: conf.Production()})
	if authenticator.UsingDefaultSecret() {
		L.Warn(ctx, "admin password is the built-in default, set SITE_ADMIN_PASSWORD")
	}

	uploader := media.NewUploader(blobs, L.With("subsystem", "media"), m)
	usage := media.NewUsageReporter(blobs, L.With("subsystem", "media"), m)

	// Brute force protection for the admin password
	loginLimiter := ratelimit.New(ctx,
		ratelimit.WithRate(0.2, 5),
		ratelimit.WithTTL(30*time.Minute),
		ratelimit.WithMaxVisitors(10000),
		ratelimit.WithOnDenied(func(ip string) { m.IncRateLimitDenied() }),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "admin login rate limit triggered", "ip", ip)
		}),
	)

	adminAPI, err := adminhttp.NewAPI(adminhttp.Options{
		Logger:     L.With("subsystem", "admin"),
		Auth:       authenticator,
		Content:    store,
		Uploader:   uploader,
		Usage:      usage,
		Blobs:      blobs,
		Metrics:    m,
		TemplateFS: webassets.TemplatesFS(),
		LoginLimit: loginLimiter.Middleware,
		Location:   loc,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create admin API")
		os.Exit(1)
	}

	siteHandler, err := sitehandler.New(&sitehandler.Options{
		Logger:     L.With("subsystem", "site"),
		Content:    store,
		TemplateFS: webassets.TemplatesFS(),
		StaticFS:   webassets.StaticFS(),
		FallbackFS: webassets.FallbackFS(),
		Location:   loc,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	// ready when not draining and the content document can be read
	var gate health.Gate
	readiness := health.All(
		&gate,
		health.Named("content", health.CheckFunc(store.ReadyErr)),
	)

	limiter := ratelimit.New(ctx,
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// log once per visitor until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Health:       health.OK,
		Readiness:    readiness,
		APIRoutes:    func(r chi.Router) { adminAPI.RegisterRoutes(r) },
		SiteHandler:  siteHandler,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		ContentInfo:  store,
		Security: httpmw.SecurityOptions{
			ImgSources: imgOrigins,
			HTTPS:      conf.Production(),
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// ops listener rejects public source addresses
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.OK,
		Readiness:    readiness,
		Build:        vi,
		Content:      store,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd readiness not sent", "reason", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Close("draining")
	L.Info(context.Background(), "shutdown gate closed, draining", "drain", drainPeriod(conf).String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod(conf)):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// drainPeriod is how long readiness stays red before listeners close. Local
// development has no load balancer to wait for.
func drainPeriod(conf cfg.App) time.Duration {
	if conf.Production() {
		return 30 * time.Second
	}
	return 0
}

// originOf returns scheme://host of u, or "" if u is not absolute.
func originOf(u string) string {
	p, err := url.Parse(u)
	if err != nil || p.Scheme == "" || p.Host == "" {
		return ""
	}
	return p.Scheme + "://" + p.Host
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
