// Package cfg holds the server configuration. Every field is a flag; any
// flag not given on the command line can be set from SITE_* environment
// variables, which a local .env file may provide.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/smallbiz-web/internal/log"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort         int
	AdminPort        int
	TrustedProxyHops int
	Environment      string
	Timezone         string

	EnablePprof     bool
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	// content persistence
	ContentFile string
	ContentKey  string

	// admin secret, either literal or read from SSM at startup
	AdminPassword         string
	AdminPasswordSSMParam string

	// blob storage; an empty bucket selects the local file backend
	BlobBucket     string
	BlobPrefix     string
	BlobPublicURL  string
	BlobEndpoint   string
	BlobPathStyle  bool
	BlobPublicRead bool
}

// Production reports whether the app runs in the production environment.
func (c App) Production() bool { return c.Environment == EnvProduction }

// BlobConfigured reports whether a bucket was set. It is the only switch
// between the blob and file content backends.
func (c App) BlobConfigured() bool { return c.BlobBucket != "" }

// Register binds every field to fs with its default.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or text (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "lowest level that gets a stack trace")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "log the wrap chain of errors")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "public listen port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen port (1..65535)")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "reverse proxies in front of the server (0..10)")
	fs.StringVar(&c.Environment, "environment", EnvDevelopment, "development|production")
	fs.StringVar(&c.Timezone, "timezone", "Europe/Amsterdam", "IANA timezone for announcement dates and export names")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve pprof on the ops port")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push profiles to -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server URL")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (X-Scope-OrgID)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export traces to -otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.ContentFile, "content-file", "data/content.json", "local content document; the store in file mode, the fallback in blob mode")
	fs.StringVar(&c.ContentKey, "content-key", "content.json", "object key of the content document in blob mode")

	fs.StringVar(&c.AdminPassword, "admin-password", "", "admin password (empty uses the built-in default)")
	fs.StringVar(&c.AdminPasswordSSMParam, "admin-password-ssm-param", "", "SSM SecureString parameter holding the admin password")

	fs.StringVar(&c.BlobBucket, "blob-bucket", "", "S3 bucket for content and images (empty selects file mode)")
	fs.StringVar(&c.BlobPrefix, "blob-prefix", "", "key prefix inside the bucket")
	fs.StringVar(&c.BlobPublicURL, "blob-public-url", "", "public origin objects are served from (defaults from endpoint/region)")
	fs.StringVar(&c.BlobEndpoint, "blob-endpoint", "", "custom S3 endpoint URL, e.g. MinIO or R2")
	fs.BoolVar(&c.BlobPathStyle, "blob-path-style", false, "use path-style S3 addressing")
	fs.BoolVar(&c.BlobPublicRead, "blob-public-read", false, "set the public-read ACL on uploaded images")
}

// LoadDotenv reads KEY=value pairs from the given files (".env" when none)
// into the process environment. Variables already set win, and missing
// files are skipped.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// EnvKey is the variable consulted for a flag: "blob-bucket" with prefix
// "SITE_" is SITE_BLOB_BUCKET.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// FillFromEnv sets every flag that was not passed on the command line from
// its environment variable. Precedence is cli flag, then env, then default.
// Values are never echoed through logf because some are secrets.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	onCLI := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { onCLI[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		val, ok := os.LookupEnv(key)
		switch {
		case !ok:
		case onCLI[f.Name]:
			logf("flag -%s: cli value overrides env %s", f.Name, key)
		default:
			prev := f.Value.String()
			if err := fs.Set(f.Name, val); err != nil {
				_ = fs.Set(f.Name, prev)
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func (p *problems) port(name string, v int) {
	if v < 1 || v > 65535 {
		p.addf("invalid %s %d (must be 1..65535)", name, v)
	}
}

func (p *problems) httpURL(name, v string) {
	if v == "" {
		return
	}
	if u, err := url.Parse(v); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		p.addf("%s must be an http(s) URL (got %q)", name, v)
	}
}

// Validate reports every invalid field at once, joined into one error.
func Validate(c App) error {
	var p problems

	p.port("HTTP_PORT", c.HTTPPort)
	p.port("ADMIN_PORT", c.AdminPort)
	if c.AdminPort == c.HTTPPort {
		p.addf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 10 {
		p.addf("TRUSTED_PROXY_HOPS must be 0..10 (got %d)", c.TrustedProxyHops)
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		p.addf("invalid ENVIRONMENT %q (must be development or production)", c.Environment)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		p.addf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		p.addf("invalid LOG_LEVEL: %w", err)
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			p.addf("invalid STACKTRACE_LEVEL: %w", err)
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		p.addf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		p.addf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			p.addf("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			p.addf("OTLP_ENDPOINT must be host:port (got %q)", c.OTLPEndpoint)
		}
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			p.addf("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			p.addf("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			p.addf("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}

	if c.ContentFile == "" {
		p.addf("CONTENT_FILE is required")
	}
	if c.BlobConfigured() && c.ContentKey == "" {
		p.addf("CONTENT_KEY is required when BLOB_BUCKET is set")
	}
	p.httpURL("BLOB_PUBLIC_URL", c.BlobPublicURL)
	p.httpURL("BLOB_ENDPOINT", c.BlobEndpoint)

	if c.AdminPassword != "" && c.AdminPasswordSSMParam != "" {
		p.addf("set only one of ADMIN_PASSWORD and ADMIN_PASSWORD_SSM_PARAM")
	}

	return errors.Join(p...)
}
