package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gridline/gridline/core/logx"
	"github.com/gridline/gridline/internal/bridge"
	"github.com/gridline/gridline/internal/channel"
	"github.com/gridline/gridline/internal/config"
	"github.com/gridline/gridline/internal/engine"
	"github.com/gridline/gridline/internal/event"
	"github.com/gridline/gridline/internal/game"
	"github.com/gridline/gridline/internal/metrics"
	"github.com/gridline/gridline/internal/player"
	"github.com/gridline/gridline/internal/status"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.Config
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "gridline version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("gridline version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cfg.Mode {
	case config.ModeLocal:
		err = runLocal(ctx, &cfg)
	case config.ModeHost:
		err = runHost(ctx, &cfg)
	case config.ModeJoin:
		err = runJoin(ctx, &cfg)
	}
	if err != nil {
		logx.Log.Fatal().Err(err).Str("mode", cfg.Mode).Msg("session failed")
	}
}

// gameOver returns a channel closed when a terminal StateUpdated is seen.
func gameOver(bus *event.Bus) <-chan struct{} {
	done := make(chan struct{})
	var sub event.Subscription
	sub = event.Subscribe(bus, func(ev event.StateUpdated) error {
		if ev.Over {
			bus.Unsubscribe(sub)
			close(done)
		}
		return nil
	})
	return done
}

func startStatus(ctx context.Context, cfg *config.Config, mode, session string, state func() engine.State) error {
	if cfg.StatusAddr == "" {
		return nil
	}
	_, err := status.Start(ctx, cfg.StatusAddr, metrics.Registry(), func() status.Snapshot {
		return status.Snapshot{Mode: mode, Session: session, State: state()}
	})
	return err
}

// newPolicy attaches a policy for symbol; human policies get the
// terminal front end on top.
func newPolicy(bus *event.Bus, kind string, symbol game.Symbol, term *terminal) {
	switch kind {
	case config.PolicyHuman:
		term.attach(player.NewLocal(bus, symbol))
	case config.PolicyEasyAI:
		player.NewRandomAI(bus, symbol)
	case config.PolicyHardAI:
		player.NewMinimaxAI(bus, symbol)
	}
}

func runLocal(ctx context.Context, cfg *config.Config) error {
	bus := event.New()
	defer bus.Clear()
	eng := engine.New(bus)
	term := newTerminal(bus)
	done := gameOver(bus)

	if err := startStatus(ctx, cfg, config.ModeLocal, "", eng.State); err != nil {
		return err
	}
	newPolicy(bus, cfg.PlayerX, game.X, term)
	newPolicy(bus, cfg.PlayerO, game.O, term)
	term.start(ctx)

	if err := eng.Start(); err != nil {
		return err
	}
	select {
	case <-done:
		logx.Log.Info().Msg("game over")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runHost(ctx context.Context, cfg *config.Config) error {
	acceptCtx := ctx
	if cfg.AcceptTimeout > 0 {
		var cancel context.CancelFunc
		acceptCtx, cancel = context.WithTimeout(ctx, cfg.AcceptTimeout)
		defer cancel()
	}
	var (
		ch  *channel.Channel
		err error
	)
	if cfg.Transport == config.TransportWS {
		ch, err = channel.ListenWS(acceptCtx, cfg.ListenAddr)
	} else {
		ch, err = channel.Listen(acceptCtx, cfg.ListenAddr)
	}
	if err != nil {
		return err
	}

	bus := event.New()
	defer bus.Clear()
	eng := engine.New(bus)
	term := newTerminal(bus)
	done := gameOver(bus)

	hostSymbol := game.Symbol(cfg.HostSymbol)
	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	br, err := bridge.NewAuthoritative(hctx, bus, ch, hostSymbol.Opponent())
	cancel()
	if err != nil {
		return err
	}
	defer br.Close()

	if err := startStatus(ctx, cfg, config.ModeHost, br.Session(), eng.State); err != nil {
		return err
	}
	newPolicy(bus, cfg.LocalPolicy, hostSymbol, term)
	term.start(ctx)

	if err := eng.Start(); err != nil {
		return err
	}
	select {
	case <-done:
		logx.Log.Info().Msg("game over")
		return nil
	case <-br.Done():
		return errors.New("peer disconnected")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runJoin(ctx context.Context, cfg *config.Config) error {
	var (
		ch  *channel.Channel
		err error
	)
	if cfg.Transport == config.TransportWS {
		ch, err = channel.DialWS(ctx, cfg.ConnectAddr)
	} else {
		ch, err = channel.Dial(ctx, cfg.ConnectAddr)
	}
	if err != nil {
		return err
	}

	bus := event.New()
	defer bus.Clear()
	rep := engine.NewReplica(bus)
	term := newTerminal(bus)
	done := gameOver(bus)

	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	rel, err := bridge.NewRelay(hctx, bus, ch)
	cancel()
	if err != nil {
		return err
	}
	defer rel.Close()

	if err := startStatus(ctx, cfg, config.ModeJoin, rel.Session(), rep.State); err != nil {
		return err
	}
	newPolicy(bus, cfg.LocalPolicy, rel.Symbol(), term)
	term.start(ctx)

	select {
	case <-done:
		logx.Log.Info().Msg("game over")
		return nil
	case <-rel.Done():
		return errors.New("peer disconnected")
	case <-ctx.Done():
		return ctx.Err()
	}
}
