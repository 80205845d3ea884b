package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/jsonfas"
	"github.com/MrEthical07/jsonfas/client"
)

const DefaultAddress = ":8080"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	catchCtrlC(cancel)

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// overrides holds flags that replace values from the config file when set.
type overrides struct {
	serviceURL      string
	serviceUsername string
	servicePassword string
	ssl             bool
	throttle        bool
	audit           bool
	metrics         bool
	failureURL      string
	csrfSecret      string
	debug           bool
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cmd := &cobra.Command{
		Use:           "jsonfasd",
		Short:         "account service identity daemon",
		Long:          "jsonfasd resolves visitor identities against a JSON account service and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           func(cmd *cobra.Command, args []string) {},
	}
	cmd.SetOut(out)

	var (
		help, version bool
		configPath    string
		redisAddr     string
		strict        bool
		ov            overrides
	)
	cmd.Flags().BoolVar(&version, "version", false, "Print version of jsonfasd")
	cmd.Flags().BoolVarP(&help, "help", "h", false, "Print usage information")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address for the login throttle. Empty runs an in-process store.")
	cmd.Flags().BoolVar(&strict, "strict", false, "Refuse to start when the config has high severity findings")
	bindOverrides(cmd.Flags(), &ov)

	loggerCfg := newLoggerConfigFromFlags(cmd.Flags())
	serverCfg := newServerConfigFromFlags(cmd.Flags())

	if err := setFlagsFromEnvVariables(cmd.Flags()); err != nil {
		return err
	}
	if err := cmd.ParseFlags(args); err != nil {
		return err
	}

	if help {
		return cmd.Help()
	}
	if version {
		fmt.Fprintln(cmd.OutOrStdout(), jsonfas.Version)
		return nil
	}

	logger, err := newLogger(loggerCfg, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath, cmd.Flags(), ov)
	if err != nil {
		return err
	}

	svc, err := client.FromConfig(cfg, logger.WithName("client"))
	if err != nil {
		return err
	}

	builder := jsonfas.New().
		WithConfig(cfg).
		WithAccountService(svc).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(jsonfas.NewJSONWriterSink(os.Stderr))
	}
	if cfg.Throttle.Enabled {
		rdb, closeRedis, err := openRedis(logger, redisAddr)
		if err != nil {
			return err
		}
		defer closeRedis()
		builder = builder.WithRedis(rdb)
	}

	provider, err := builder.Build()
	if err != nil {
		return err
	}
	defer provider.Close()

	report := provider.SecurityReport()
	for _, w := range report.Warnings.BySeverity(jsonfas.LintWarn) {
		logger.Info("config warning", "code", w.Code, "severity", w.Severity.String(), "detail", w.Message)
	}
	if strict {
		if err := report.Warnings.AsError(jsonfas.LintHigh); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", serverCfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", serverCfg.Addr, err)
	}
	logger.Info("using account service",
		"host", svc.Hostname(),
		"csrf", report.CSRFMode,
		"ssl", report.SSLEnabled,
		"throttle", report.ThrottleActive,
		"audit", report.AuditEnabled)
	return serve(ctx, logger, ln, newRouter(logger, *serverCfg, provider))
}

func bindOverrides(flags *pflag.FlagSet, ov *overrides) {
	flags.StringVar(&ov.serviceURL, "service-url", "", "Account service base URL")
	flags.StringVar(&ov.serviceUsername, "service-username", "", "Service account username")
	flags.StringVar(&ov.servicePassword, "service-password", "", "Service account password")
	flags.BoolVar(&ov.ssl, "ssl", false, "Accept client certificates verified by the front-end proxy")
	flags.BoolVar(&ov.throttle, "throttle", false, "Throttle failed interactive logins")
	flags.BoolVar(&ov.audit, "audit", false, "Write audit events to stderr as JSON lines")
	flags.BoolVar(&ov.metrics, "metrics", true, "Record metrics for /metrics")
	flags.StringVar(&ov.failureURL, "failure-url", "", "Login page URL reported to clients")
	flags.StringVar(&ov.csrfSecret, "csrf-secret", "", "Key anti-forgery tokens with this secret")
	flags.BoolVar(&ov.debug, "debug", false, "Log identity resolution details")
}

func newServerConfigFromFlags(flags *pflag.FlagSet) *serverConfig {
	cfg := serverConfig{}
	flags.StringVar(&cfg.Addr, "address", DefaultAddress, "Listening address")
	flags.BoolVar(&cfg.EnableRequestLogging, "log-http-requests", false, "Log HTTP requests")
	flags.BoolVar(&cfg.TrustProxyHeaders, "trust-proxy-headers", false, "Take the client address from X-Forwarded-For")
	return &cfg
}

// loadConfig reads the config file, if any, and then applies every flag the
// user set explicitly.
func loadConfig(path string, flags *pflag.FlagSet, ov overrides) (jsonfas.Config, error) {
	cfg := jsonfas.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = jsonfas.LoadConfigFile(path); err != nil {
			return jsonfas.Config{}, err
		}
	}

	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("service-url", func() { cfg.Service.URL = ov.serviceURL })
	set("service-username", func() { cfg.Service.Username = ov.serviceUsername })
	set("service-password", func() { cfg.Service.Password = ov.servicePassword })
	set("ssl", func() { cfg.SSL.Enabled = ov.ssl })
	set("throttle", func() { cfg.Throttle.Enabled = ov.throttle })
	set("audit", func() { cfg.Audit.Enabled = ov.audit })
	set("metrics", func() { cfg.Metrics.Enabled = ov.metrics })
	set("failure-url", func() { cfg.FailureURL = ov.failureURL })
	set("csrf-secret", func() { cfg.CSRF.Secret = ov.csrfSecret })
	set("debug", func() { cfg.Debug = ov.debug })
	if path == "" && !flags.Changed("metrics") {
		cfg.Metrics.Enabled = ov.metrics
	}

	if cfg.Service.URL == "" {
		return jsonfas.Config{}, errors.New("an account service URL is required: set --service-url or service.url")
	}
	return cfg, nil
}

// openRedis connects to addr, or starts an in-process store when addr is
// empty. Throttle state in the in-process store is lost on restart.
func openRedis(logger logr.Logger, addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("starting in-process redis: %w", err)
	}
	logger.Info("no --redis-addr given, throttle state is in-process only", "addr", mr.Addr())
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}
