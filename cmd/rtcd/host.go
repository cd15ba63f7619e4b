package main

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"os"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/componentregistry"
	"github.com/OpenRTM/RTM-Tutorial-sub001/config"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/health"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/tlsutil"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rtm"
)

const (
	natsConnectTimeout = 10 * time.Second
	profileInterval    = 30 * time.Second
	minFreeDisk        = 64 << 20
)

// host owns everything one rtcd process runs
type host struct {
	cfg      *config.Config
	logger   *slog.Logger
	nats     *natsclient.Client
	manager  *config.Manager
	registry *metric.MetricsRegistry
	rt       *rtm.Runtime
	ecs      []*component.ExecutionContext
}

// newHost connects to NATS when configured, reconciles the configuration
// with the KV bucket, builds the runtime and assembles the pipeline
func newHost(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*host, error) {
	h := &host{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
	}

	if cfg.NATS.Enabled() {
		if err := h.connectNATS(ctx); err != nil {
			h.release(context.Background())
			return nil, err
		}
	}

	rt, err := rtm.New(h.runtimeOptions()...)
	if err != nil {
		h.release(context.Background())
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	h.rt = rt

	if err := componentregistry.Register(rt.Components()); err != nil {
		h.release(context.Background())
		return nil, fmt.Errorf("register components: %w", err)
	}
	logger.Info("Component factories registered", "types", rt.Components().Types())

	if err := rt.Start(ctx); err != nil {
		h.release(context.Background())
		return nil, fmt.Errorf("start runtime: %w", err)
	}
	if err := h.assemble(); err != nil {
		h.release(context.Background())
		return nil, err
	}
	return h, nil
}

func (h *host) connectNATS(ctx context.Context) error {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName + "-" + h.cfg.Platform.Instance),
		natsclient.WithLogger(h.logger),
		natsclient.WithMetrics(h.registry.CoreMetrics()),
		natsclient.WithMaxReconnects(h.cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(h.cfg.NATS.ReconnectWait),
		natsclient.WithPingInterval(h.cfg.NATS.PingInterval),
		natsclient.WithRequestTimeout(h.cfg.NATS.RequestTimeout),
		natsclient.WithDrainTimeout(h.cfg.NATS.DrainTimeout),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				h.logger.Info("NATS connection healthy")
				return
			}
			h.logger.Warn("NATS connection unhealthy")
		}),
	}
	if h.cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(h.cfg.NATS.Username, h.cfg.NATS.Password))
	}
	if h.cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(h.cfg.NATS.Token))
	}
	tlsConfig, err := tlsutil.LoadClientConfig(h.cfg.NATS.TLS)
	if err != nil {
		return fmt.Errorf("NATS TLS: %w", err)
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}

	client, err := natsclient.NewClient(h.cfg.NATS.URLs[0], opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	h.nats = client

	h.logger.Info("Connecting to NATS", "url", client.URL())
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	manager, err := config.NewConfigManager(ctx, h.cfg, client, h.logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	h.manager = manager
	h.cfg = manager.GetConfig().Get()
	return nil
}

func (h *host) runtimeOptions() []rtm.Option {
	rc := h.cfg.Runtime
	opts := []rtm.Option{
		rtm.WithInstance(h.cfg.Platform.Instance),
		rtm.WithLogger(h.logger),
		rtm.WithMetricsRegistry(h.registry),
		rtm.WithPoolSize(rc.PoolSize),
		rtm.WithTickInterval(rc.TickInterval),
		rtm.WithRPCPrefix(rc.RPCPrefix),
		rtm.WithPubSubWorkers(rc.PubSubWorkers, 0),
	}
	if h.nats != nil {
		opts = append(opts, rtm.WithNATS(h.nats))
	}
	if rc.WebsocketEndpoint != "" {
		opts = append(opts, rtm.WithWebsocketEndpoint(rc.WebsocketEndpoint))
	}
	if rc.ProfileBucket != "" {
		opts = append(opts, rtm.WithProfileBucket(rc.ProfileBucket))
	}
	return opts
}

// assemble creates the enabled components, connects their ports and starts
// the execution contexts
func (h *host) assemble() error {
	for _, name := range slices.Sorted(maps.Keys(h.cfg.Components)) {
		cc := h.cfg.Components[name]
		if !cc.Enabled {
			h.logger.Info("Component disabled in config", "name", name)
			continue
		}
		if _, err := h.rt.CreateComponent(cc.Type, name, cc.Config); err != nil {
			return fmt.Errorf("create component %s: %w", name, err)
		}
		h.logger.Info("Created component", "name", name, "type", cc.Type)
	}

	for _, conn := range h.cfg.Connections {
		if err := h.connect(conn); err != nil {
			return fmt.Errorf("connect %s: %w", conn.Name, err)
		}
	}

	for i, ecCfg := range h.cfg.ExecutionContexts {
		ec, err := h.startContext(ecCfg)
		if err != nil {
			return fmt.Errorf("execution context %d: %w", i, err)
		}
		h.ecs = append(h.ecs, ec)
	}
	return nil
}

func (h *host) connect(conn config.ConnectionConfig) error {
	fromComp, fromPort, toComp, toPort, err := conn.Endpoints()
	if err != nil {
		return err
	}
	out, err := lookupPort[*port.OutPort[datatype.TimedLong]](h.rt.Components(), fromComp, fromPort)
	if err != nil {
		return err
	}
	in, err := lookupPort[*port.InPort[datatype.TimedLong]](h.rt.Components(), toComp, toPort)
	if err != nil {
		return err
	}

	info, err := port.Connect(conn.Name, out, in, properties.FromMap(conn.Properties))
	if err != nil {
		return err
	}
	h.logger.Info("Connected ports",
		"connection", conn.Name,
		"id", info.ID,
		"from", conn.From,
		"to", conn.To)
	return nil
}

// lookupPort finds a component port and checks its data type and direction
func lookupPort[P port.Port](reg *component.Registry, compName, portName string) (P, error) {
	var zero P
	c, ok := reg.Component(compName)
	if !ok {
		return zero, errors.WrapInvalid(errors.ErrPortNotFound, "host", "lookupPort", "component "+compName)
	}
	p, ok := c.Port(portName)
	if !ok {
		return zero, errors.WrapInvalid(errors.ErrPortNotFound, "host", "lookupPort", compName+"."+portName)
	}
	typed, ok := p.(P)
	if !ok {
		return zero, errors.WrapInvalid(
			fmt.Errorf("port %s.%s is %s or carries another data type", compName, portName, p.Direction()),
			"host", "lookupPort", "type check")
	}
	return typed, nil
}

func (h *host) startContext(ecCfg config.ExecutionContextConfig) (*component.ExecutionContext, error) {
	ec, err := h.rt.NewExecutionContext(ecCfg.Rate)
	if err != nil {
		return nil, err
	}
	members := make([]*component.Component, 0, len(ecCfg.Components))
	for _, name := range ecCfg.Components {
		c, ok := h.rt.Components().Component(name)
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "host", "startContext", "unknown component "+name)
		}
		if err := ec.AddComponent(c); err != nil {
			return nil, err
		}
		members = append(members, c)
	}
	if err := ec.Start(); err != nil {
		return nil, err
	}
	for _, c := range members {
		if err := ec.ActivateComponent(c); err != nil {
			return nil, fmt.Errorf("activate %s: %w", c.Name(), err)
		}
	}
	h.logger.Info("Execution context started",
		"id", ec.ID(),
		"rate", ec.Rate(),
		"components", ecCfg.Components)
	return ec, nil
}

// serve drives the runtime timer and the HTTP endpoints until ctx ends or
// one of them fails
func (h *host) serve(ctx context.Context) error {
	var metricsSrv *metric.Server
	if h.cfg.Metrics.Enabled {
		metricsSrv = metric.NewServer(h.cfg.Metrics.Port, h.cfg.Metrics.Path, h.registry)
		if err := metricsSrv.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = metricsSrv.Stop() }()
		h.logger.Info("Metrics server started", "address", metricsSrv.Address())
	}

	var healthLn net.Listener
	if h.cfg.Health.Enabled {
		tlsConfig, err := tlsutil.LoadServerConfig(h.cfg.Health.TLS)
		if err != nil {
			return fmt.Errorf("health TLS: %w", err)
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", h.cfg.Health.Port))
		if err != nil {
			return fmt.Errorf("listen health port %d: %w", h.cfg.Health.Port, err)
		}
		if tlsConfig != nil {
			ln = tls.NewListener(ln, tlsConfig)
		}
		healthLn = ln
		h.logger.Info("Health server started", "address", ln.Addr().String(), "tls", tlsConfig != nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.rt.Run(gctx) })

	if healthLn != nil {
		srv := &http.Server{
			Handler:           h.checker().Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.Serve(healthLn); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if h.cfg.Runtime.ProfileBucket != "" && h.nats != nil {
		g.Go(func() error { return h.recordProfiles(gctx) })
	}
	if h.manager != nil {
		g.Go(func() error { return h.watchConfig(gctx) })
	}

	h.logger.Info("rtcd started",
		"components", len(h.rt.Components().Components()),
		"execution_contexts", len(h.ecs))
	return g.Wait()
}

func (h *host) checker() *health.Checker {
	opts := []health.CheckerOption{
		health.WithSystemName(h.cfg.Platform.Instance),
		health.WithMetricsRegistry(h.registry),
		health.WithComponents(h.rt.Components().Components),
		health.WithDiskSpace(os.TempDir(), minFreeDisk),
	}
	if h.nats != nil {
		opts = append(opts, health.WithNATS(h.nats))
	}
	return health.NewChecker(health.NewMonitor(), opts...)
}

func (h *host) recordProfiles(ctx context.Context) error {
	ticker := time.NewTicker(profileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.rt.RecordProfiles(ctx); err != nil {
				h.logger.Warn("Failed to record profiles", "error", err)
			}
		}
	}
}

// watchConfig applies execution context rate changes made in the KV bucket.
// Other changes take effect on restart.
func (h *host) watchConfig(ctx context.Context) error {
	rates := h.manager.OnChange("execution_contexts")
	comps := h.manager.OnChange("components.*")
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-rates:
			h.applyRates(u.Config.Get().ExecutionContexts)
		case u := <-comps:
			if u.Path != "components.*" {
				h.logger.Info("Component configuration changed, restart to apply", "path", u.Path)
			}
		}
	}
}

func (h *host) applyRates(cfgs []config.ExecutionContextConfig) {
	for i, ec := range h.ecs {
		if i >= len(cfgs) || cfgs[i].Rate == ec.Rate() {
			continue
		}
		if err := ec.SetRate(cfgs[i].Rate); err != nil {
			h.logger.Warn("Rejected execution context rate", "id", ec.ID(), "rate", cfgs[i].Rate, "error", err)
			continue
		}
		h.logger.Info("Execution context rate changed", "id", ec.ID(), "rate", cfgs[i].Rate)
	}
}

// shutdown stops the runtime, which deactivates and finalizes every
// component, then the config manager and the NATS connection
func (h *host) shutdown(ctx context.Context) error {
	return stderrors.Join(h.release(ctx)...)
}

// release closes whatever newHost managed to build
func (h *host) release(ctx context.Context) []error {
	var errs []error
	if h.rt != nil {
		if err := h.rt.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("runtime: %w", err))
		}
	}
	if h.manager != nil {
		if err := h.manager.Stop(5 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("config manager: %w", err))
		}
	}
	if h.nats != nil {
		if err := h.nats.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("NATS: %w", err))
		}
	}
	return errs
}
