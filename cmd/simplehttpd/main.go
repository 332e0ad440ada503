// Command simplehttpd is the runnable embedder spec.md §1 places outside
// the core: it parses flags/config, builds a fileserver.Server rooted at
// a document root, and serves it over a real net.Listener until
// interrupted.
//
// Grounded on docker-compose's ecs/cmd/main/main.go for the
// root-command-with-flags shape (a single options struct bound with
// pflag's StringVar family, a RunE closure doing the real work), adapted
// here to one command instead of a command tree since the module has a
// single entry point rather than a family of subcommands.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlanQuatermain/SimpleHTTPServer/config"
	"github.com/AlanQuatermain/SimpleHTTPServer/fileserver"
	"github.com/AlanQuatermain/SimpleHTTPServer/metrics"
	"github.com/AlanQuatermain/SimpleHTTPServer/serverlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	root        string
	addr        string
	configPath  string
	logFormat   string
	metricsAddr string
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd returns the simplehttpd root command.
func NewRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "simplehttpd",
		Short: "Serve a directory tree over HTTP/1.1.",
		Long:  "simplehttpd serves static files from a document root over HTTP/1.1, with Range, conditional-request, and keep-alive/pipelining support.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.root, "root", "", "document root to serve (overrides --config's root)")
	flags.StringVar(&opts.addr, "addr", "", "listen address (overrides --config's addr)")
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.logFormat, "log-format", "", "log output format (overrides --config); logs are always written as JSON")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "if set, expose Prometheus metrics on this address's /metrics path")

	return cmd
}

func run(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("simplehttpd: %w", err)
	}

	level, err := cfg.ZapLevel()
	if err != nil {
		return err
	}
	log := serverlog.New("simplehttpd", level)

	registry := prometheus.NewRegistry()
	mtr := metrics.New(registry)

	srv, err := fileserver.New(cfg.Root,
		fileserver.WithLogger(log),
		fileserver.WithObserver(mtr),
		fileserver.WithConnLifecycle(mtr.ConnectionOpened, mtr.ConnectionClosed),
		fileserver.WithIdleTimeout(cfg.IdleTimeout),
	)
	if err != nil {
		return fmt.Errorf("simplehttpd: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("simplehttpd: listen %s: %w", cfg.Addr, err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.metricsAddr != "" {
		startMetricsServer(ctx, log, opts.metricsAddr, mtr)
	}

	log.Info("listening", zap.String("addr", cfg.Addr), zap.String("root", cfg.Root))
	return srv.Serve(ctx, ln)
}

func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.InitFromFile(opts.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if opts.root != "" {
		cfg.Root = opts.root
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func startMetricsServer(ctx context.Context, log serverlog.Logger, addr string, mtr *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mtr.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
