// Command zoneserver is the SubSpace/Continuum-compatible zone server
// core process: it wires the component broker, arena/player tables,
// mainloop, reliable transport, persistence executor, chat dispatch,
// lag collection, and capability service together and serves one UDP
// socket per configured listen endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/subzone/zonecore/internal/arena"
	"github.com/subzone/zonecore/internal/auth"
	"github.com/subzone/zonecore/internal/broker"
	"github.com/subzone/zonecore/internal/capability"
	"github.com/subzone/zonecore/internal/chat"
	"github.com/subzone/zonecore/internal/config"
	"github.com/subzone/zonecore/internal/extradata"
	"github.com/subzone/zonecore/internal/lag"
	"github.com/subzone/zonecore/internal/mainloop"
	"github.com/subzone/zonecore/internal/netio"
	"github.com/subzone/zonecore/internal/persist"
	"github.com/subzone/zonecore/internal/player"
	"github.com/subzone/zonecore/internal/reliable"
)

const (
	BootstrapConfigPath = "config/zoneserver.yaml"
	MetricsAddr         = ":7901"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := BootstrapConfigPath
	if p := os.Getenv("ZONECORE_CONFIG"); p != "" {
		cfgPath = p
	}
	boot, err := config.LoadBootstrap(cfgPath)
	if err != nil {
		return fmt.Errorf("loading bootstrap config: %w", err)
	}

	logLevel := parseLogLevel(boot.LogLevel)
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
	log.Info("zonecore starting", "log_level", boot.LogLevel, "listen_endpoints", len(boot.Listen))

	db, err := persist.New(ctx, boot.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	log.Info("database connected")

	if err := persist.RunMigrations(ctx, boot.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations applied")

	cfgMgr, err := config.NewManager(boot.ConfigDir, log)
	if err != nil {
		return fmt.Errorf("starting config manager: %w", err)
	}
	defer cfgMgr.Close()

	root := broker.NewRoot()
	arenaRegistry := extradata.NewRegistry[arena.Arena]()
	playerRegistry := extradata.NewRegistry[player.Player]()

	arenaMgr := arena.NewManager(root, arenaRegistry, log)
	playerTbl := player.NewTable(playerRegistry)
	m := mainloop.New(log)

	metricsReg := prometheus.NewRegistry()
	lagTbl := lag.NewTable(metricsReg)
	caps := capability.NewService()
	caps.Grant(capability.GroupDefault, "chat_pub")
	chatMasks := chat.NewMaskTable()
	commands := chat.NewRegistry(log, caps)

	store := persist.NewStore(db, m, log)

	// Default authenticator: permits every login outright. A real
	// deployment registers a billing-backed auth.IAuth ahead of this
	// one via broker.GetInterface+RegisterInterface (§4.6's fetch-
	// then-chain pattern); this is just the bottom of that chain.
	if _, err := broker.RegisterInterface[auth.IAuth](root, auth.IAuthFunc(func(req *auth.Request) {
		req.Result.Code = auth.CodeOK
		req.Result.Authenticated = true
		req.Done()
	}), ""); err != nil {
		return fmt.Errorf("registering default authenticator: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runMetricsServer(gctx, metricsReg, log)
	})

	g.Go(func() error {
		code := m.Run(gctx, func(now time.Time) {
			arenaMgr.Advance(arena.PersistHooks{
				RequestLoad: func(a *arena.Arena, done func()) {
					store.GetArena(a, func(error) { done() })
				},
				RequestSave: func(a *arena.Arena, done func()) {
					store.PutArena(a, func(error) { done() })
				},
			})
			chatMasks.Sweep(now)
		})
		log.Info("mainloop exited", "code", code)
		return nil
	})

	g.Go(func() error {
		store.Run(gctx)
		return nil
	})

	listeners := make([]*netio.Listener, 0, len(boot.Listen))
	for _, ep := range boot.Listen {
		l, err := newZoneListener(ep, playerTbl, lagTbl, commands, m, log)
		if err != nil {
			return fmt.Errorf("starting listen endpoint %s:%d: %w", ep.IP, ep.Port, err)
		}
		listeners = append(listeners, l)

		listener := l
		g.Go(func() error {
			log.Info("serving listen endpoint", "connect_as", listener.ConnectAs(), "addr", listener.LocalAddr().String())
			return listener.Serve(gctx, nil)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		done := make(chan struct{})
		store.SaveAll(func() { close(done) })
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			log.Warn("shutdown: SaveAll did not complete before timeout")
		}
		m.Quit(mainloop.ExitNormal)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// chatPacketType is the game-level packet type byte carrying a raw
// chat line, analogous to the fixed 0x07 S2C/C2S chat type in the
// wider SubSpace protocol family; §6 only names the core-subtype
// bytes, not any game packet type, so this is this repo's own choice.
const chatPacketType = 0x07

// newZoneListener binds one UDP listen endpoint (§6 "Ports and listen
// endpoints") and wires its handshake handler so every accepted session
// gets a reliable.Connection bound to that session's send path.
func newZoneListener(ep config.ListenEndpoint, playerTbl *player.Table, lagTbl *lag.Table, commands *chat.Registry, m *mainloop.Mainloop, log *slog.Logger) (*netio.Listener, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(ep.IP), Port: ep.Port})
	if err != nil {
		return nil, fmt.Errorf("binding udp socket: %w", err)
	}

	l := netio.NewListener(conn, ep.ConnectAs, log)

	l.AddPacket(chatPacketType, func(sess *netio.Session, payload []byte) {
		p, ok := sess.Extra.(*player.Player)
		if !ok || len(payload) < 2 {
			return
		}
		commands.Dispatch(p, p.Arena, chat.TargetArena, string(payload[1:]))
	})

	handshake, err := netio.NewHandshakeHandler(l, log)
	if err != nil {
		return nil, fmt.Errorf("building handshake handler: %w", err)
	}

	limiter := reliable.NewLimiter(64 * 1024)
	handshake.OnAccepted = func(sess *netio.Session, raddr *net.UDPAddr) {
		p := playerTbl.Accept(raddr, player.ClientContinuum, 0)

		var conn *reliable.Connection
		conn = reliable.NewConnection(limiter,
			func(buf []byte) { l.Send(sess, buf) },
			func(payload []byte) { dispatchGamePayload(l, sess, payload) },
			func() {
				m.QueueWorkItem(func() {
					playerTbl.Teardown(p)
					l.Remove(sess)
				})
			},
		)
		conn.SetSyncHandler(func(serverTime, clientTime time.Time) {
			lagTbl.CollectTimeSync(p.PID, serverTime, clientTime)
		})
		sess.Extra = p
		sess.OnCore = conn.HandleCore
	}
	l.RegisterInitHandler(handshake)

	return l, nil
}

// dispatchGamePayload routes one fully-reassembled reliable payload
// through the listener's ordinary game-packet dispatch table, the same
// path an unreliable datagram's payload takes in Listener.Serve.
func dispatchGamePayload(l *netio.Listener, sess *netio.Session, payload []byte) {
	l.Dispatch(sess, payload)
}

func runMetricsServer(ctx context.Context, reg *prometheus.Registry, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: MetricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}

// parseLogLevel converts a string log level to slog.Level, defaulting
// to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
