package run

import (
	"context"
	"errors"
	"fmt"
	"github.com/clambin/go-common/charmer"
	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/home-controller/internal/bot"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/clambin/home-controller/internal/hass"
	"github.com/clambin/home-controller/internal/health"
	"github.com/clambin/home-controller/internal/home"
	"github.com/clambin/home-controller/internal/learning"
	"github.com/clambin/home-controller/internal/mqttcache"
	"github.com/clambin/home-controller/internal/notifier"
	"github.com/clambin/home-controller/internal/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

var (
	Cmd = cobra.Command{
		Use:   "run",
		Short: "run the home controller",
		RunE:  run,
	}

	args = charmer.Arguments{
		"notify.targets": {"", "Space-separated notify services that receive alerts (e.g. mobile_app_phone)"},
	}
)

func init() {
	_ = charmer.SetPersistentFlags(&Cmd, viper.GetViper(), args)
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts slog.HandlerOptions
	if viper.GetBool("debug") {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &opts))
	logger.Info("home-controller starting", "version", cmd.Root().Version)
	defer logger.Info("home-controller stopped")

	return runWithConfig(ctx, viper.GetViper(), prometheus.DefaultRegisterer, logger)
}

func runWithConfig(ctx context.Context, v *viper.Viper, registry prometheus.Registerer, logger *slog.Logger) error {
	if tz := v.GetString("timezone"); tz != "" && tz != "Local" {
		location, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
		time.Local = location
	}

	cfg, err := loadConfiguration(filepath.Join(filepath.Dir(v.ConfigFileUsed()), "home.yaml"), logger)
	if err != nil {
		return err
	}

	c, err := newComponents(v, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer c.close()
	return c.run(ctx)
}

func loadConfiguration(path string, logger *slog.Logger) (home.Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("no home configuration found. using defaults", "path", path)
			return home.DefaultConfiguration(), nil
		}
		return home.Configuration{}, err
	}
	defer func() { _ = f.Close() }()
	return home.LoadConfiguration(f)
}

type components struct {
	client     *hass.Client
	listener   *hass.Listener
	controller *home.Controller
	scheduler  *schedule.Scheduler
	health     *health.Health
	alerts     *notifier.Queue
	slackBot   *slackbot.SlackBot
	cache      *mqttcache.Cache
	store      *learning.Store
	servers    []*http.Server
	logger     *slog.Logger
}

func newComponents(v *viper.Viper, cfg home.Configuration, registry prometheus.Registerer, l *slog.Logger) (*components, error) {
	var c components
	c.logger = l

	requestMetrics := hass.NewRequestMetrics("home", "hass", nil)
	homeMetrics := home.NewMetrics("home", "controller", nil)
	if registry != nil {
		registry.MustRegister(requestMetrics, homeMetrics)
	}

	c.client = hass.NewClient(v.GetString("hass.url"), v.GetString("hass.token"), requestMetrics, l.With("component", "hass"))
	c.listener = hass.NewListener(v.GetString("hass.url"), v.GetString("hass.token"), c.client, l.With("component", "listener"))

	remote := notifier.Notifiers{
		&notifier.ServiceNotifier{Invoker: c.client, Targets: v.GetStringSlice("notify.targets"), Logger: l.With("component", "notifier")},
	}
	token := v.GetString("slack.token")
	if token != "" {
		remote = append(remote, &notifier.SlackNotifier{Logger: l.With("component", "notifier"), SlackSender: slack.New(token)})
	}
	c.alerts = notifier.NewQueue(remote, 64, l.With("component", "notifier"))
	n := notifier.Notifiers{
		notifier.SLogNotifier{Logger: l.With("component", "notifier")},
		c.alerts,
	}

	options := []home.Option{
		home.WithMetrics(homeMetrics),
		home.WithClock(&clock.Simulated{
			State:       c.client,
			FreezeKey:   cfg.Entities.FreezeTime,
			OverrideKey: cfg.Entities.TimeOverride,
			Logger:      l.With("component", "clock"),
		}),
	}
	if broker := v.GetString("mqtt.broker"); broker != "" {
		c.cache = mqttcache.New(broker, v.GetString("mqtt.clientID"), l.With("component", "mqtt"))
		options = append(options, home.WithContractCache(c.cache))
	}
	if path := v.GetString("learning.database"); path != "" {
		var err error
		if c.store, err = learning.Open(path); err != nil {
			return nil, fmt.Errorf("learning: %w", err)
		}
		options = append(options, home.WithTeachingSource(c.store))
	}

	c.controller = home.New(cfg, c.client, n, l.With("component", "controller"), options...)

	var err error
	if c.scheduler, err = schedule.New(time.Local, l.With("component", "scheduler"), c.controller.Jobs()...); err != nil {
		c.close()
		return nil, err
	}

	c.health = health.New(c.listener, c.controller, l.With("component", "health"))
	healthMux := http.NewServeMux()
	healthMux.Handle("/health", c.health)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	c.servers = []*http.Server{
		{Addr: v.GetString("health.addr"), Handler: healthMux},
		{Addr: v.GetString("metrics.addr"), Handler: metricsMux},
	}

	if token != "" {
		c.slackBot = slackbot.New(
			token,
			slackbot.WithName("homeBot"),
			slackbot.WithLogger(l.With(slog.String("component", "slackbot"))),
		)
		var teacher bot.Teacher
		if c.store != nil {
			teacher = c.store
		}
		bot.New(c.slackBot, c.controller, teacher, c.scheduler, l.With("component", "bot"))
	}
	return &c, nil
}

func (c *components) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.listener.Run(ctx) })
	g.Go(func() error {
		// the controller's startup needs the host's current state
		select {
		case <-c.listener.Ready():
		case <-ctx.Done():
			return nil
		}
		return c.controller.Run(ctx, c.listener)
	})
	g.Go(func() error { return c.scheduler.Run(ctx) })
	g.Go(func() error { return c.health.Run(ctx) })
	g.Go(func() error { return c.alerts.Run(ctx) })
	if c.cache != nil {
		g.Go(func() error { return c.cache.Run(ctx) })
	}
	if c.slackBot != nil {
		g.Go(func() error { return c.slackBot.Run(ctx) })
	}
	for _, s := range c.servers {
		g.Go(func() error { return serve(ctx, s, c.logger) })
	}
	return g.Wait()
}

func serve(ctx context.Context, s *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server %s: %w", s.Addr, err)
		}
		close(errCh)
	}()
	logger.Debug("http server started", "addr", s.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (c *components) close() {
	if c.cache != nil {
		c.cache.Close()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("failed to close learning database", "err", err)
		}
	}
}
