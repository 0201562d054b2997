package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/motebus/Ultra-MCP-Servers/internal/config"
	"github.com/motebus/Ultra-MCP-Servers/internal/logctx"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
	"github.com/motebus/Ultra-MCP-Servers/stdio"
	"github.com/motebus/Ultra-MCP-Servers/storage"
	"github.com/motebus/Ultra-MCP-Servers/storage/memory"
	"github.com/motebus/Ultra-MCP-Servers/storage/redis"
)

const (
	stateMemory = "memory"
	stateRedis  = "redis"

	watchRetryInterval = 5 * time.Second
)

type options struct {
	configPath  string
	logLevel    string
	state       string
	redisAddr   string
	metricsAddr string
	envFiles    []string
}

// app carries what every server shares for one process run.
type app struct {
	opts    *options
	level   *slog.LevelVar
	log     *slog.Logger
	desktop *config.Desktop
	metrics *mcpservice.Metrics

	redisCfg config.Redis
	closers  []io.Closer
	shared   []storage.Watcher
}

func newRootCmd() *cobra.Command {
	opts := &options{
		logLevel: "info",
		state:    stateMemory,
		envFiles: []string{".env"},
	}

	root := &cobra.Command{
		Use:           "ultra-mcp",
		Short:         "MCP servers for notes, web search, Qdrant, MinIO and LangFlow over stdio",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			switch opts.state {
			case stateMemory, stateRedis:
			default:
				return fmt.Errorf("unsupported --state %q (want %s or %s)", opts.state, stateMemory, stateRedis)
			}
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(opts.logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			return config.LoadDotEnv(opts.envFiles...)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "desktop client configuration file (default: platform location of claude_desktop_config.json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.state, "state", opts.state, "state store backend (memory or redis)")
	root.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address for --state redis (default: $REDIS_ADDR)")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", opts.envFiles, ".env files loaded before reading the environment")

	for _, def := range serverDefs {
		root.AddCommand(newServerCmd(opts, def))
	}
	return root
}

func newServerCmd(opts *options, def serverDef) *cobra.Command {
	return &cobra.Command{
		Use:   def.name,
		Short: def.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a := newApp(opts, os.Stderr)
			defer func() {
				cancel()
				_ = a.Close()
			}()

			srv, err := def.build(ctx, a)
			if err != nil {
				a.log.ErrorContext(ctx, "server.build.fail", slog.String("server", def.name), slog.String("err", err.Error()))
				return err
			}
			a.start(ctx, srv)

			h := stdio.NewHandler(srv,
				stdio.WithLogger(a.log),
				stdio.WithMetrics(a.metrics),
			)
			return h.Serve(ctx)
		},
	}
}

// newApp builds the process logger and shared collaborators. Log output
// goes to logOut.
func newApp(opts *options, logOut io.Writer) *app {
	level := new(slog.LevelVar)
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(opts.logLevel)); err == nil {
		level.Set(lvl)
	}
	log := slog.New(logctx.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))
	slog.SetDefault(log)

	a := &app{
		opts:    opts,
		level:   level,
		log:     log,
		desktop: config.NewDesktop(opts.configPath, log),
	}
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = mcpservice.NewMetrics(reg)
		a.closers = append(a.closers, serveMetrics(opts.metricsAddr, reg, log))
	}
	return a
}

// changeNotifier is implemented by resource capabilities that announce
// list changes.
type changeNotifier interface {
	Notifier() *mcpservice.ChangeNotifier
}

// start launches the background work of a run: the configuration file
// watcher and, for shared state stores, the relay of writes made by other
// processes to srv's list-changed notifications. It stops with ctx.
func (a *app) start(ctx context.Context, srv mcpservice.ServerCapabilities) {
	go func() {
		if err := a.desktop.Watch(ctx); err != nil {
			a.log.WarnContext(ctx, "config.watch.fail", slog.String("path", a.desktop.Path()), slog.String("err", err.Error()))
		}
	}()

	rc, ok := srv.GetResourcesCapability()
	if !ok {
		return
	}
	cn, ok := rc.(changeNotifier)
	if !ok {
		return
	}
	for _, w := range a.shared {
		go func() {
			for {
				err := w.Watch(ctx, func(ctx context.Context, name string) {
					a.log.DebugContext(ctx, "state.remote_change", slog.String("name", name))
					_ = cn.Notifier().Notify(ctx)
				})
				if err == nil {
					return
				}
				a.log.WarnContext(ctx, "state.watch.fail", slog.String("err", err.Error()))
				select {
				case <-ctx.Done():
					return
				case <-time.After(watchRetryInterval):
				}
			}
		}()
	}
}

// Store returns the state store called namespace on the selected backend.
// An unreachable or misconfigured Redis does not fail the call; the store
// reports the problem on each operation.
func (a *app) Store(ctx context.Context, namespace string) (storage.Store, error) {
	if a.opts.state != stateRedis {
		return memory.New(), nil
	}
	if a.redisCfg.Addr == "" {
		cfg, err := config.RedisFromEnv()
		if err != nil {
			a.log.WarnContext(ctx, "state.redis.config.fail", slog.String("namespace", namespace), slog.String("err", err.Error()))
			return storage.Unavailable(err), nil
		}
		if a.opts.redisAddr != "" {
			cfg.Addr = a.opts.redisAddr
		}
		a.redisCfg = cfg
	}
	client, err := redis.Dial(ctx, a.redisCfg.Addr)
	if err != nil {
		a.log.WarnContext(ctx, "state.redis.unavailable", slog.String("addr", a.redisCfg.Addr), slog.String("err", err.Error()))
		client = redis.NewClient(a.redisCfg.Addr)
	}
	ns := namespace
	if a.redisCfg.Namespace != "" {
		ns = a.redisCfg.Namespace + ":" + namespace
	}
	st, err := redis.New(redis.Config{Client: client, KeyPrefix: a.redisCfg.KeyPrefix, Namespace: ns})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	a.closers = append(a.closers, st)
	a.shared = append(a.shared, st)
	a.log.InfoContext(ctx, "state.redis.ready", slog.String("addr", a.redisCfg.Addr), slog.String("namespace", ns))
	return st, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

type metricsServer struct {
	srv *http.Server
}

func (m metricsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) io.Closer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			log.Error("metrics.listen.fail", slog.String("addr", addr), slog.String("err", err.Error()))
			return
		}
		log.Info("metrics.serve.start", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics.serve.fail", slog.String("err", err.Error()))
		}
	}()
	return metricsServer{srv: srv}
}
