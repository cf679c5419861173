package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"livon-client/internal/app/reconnect"
	"livon-client/internal/app/session"
	"livon-client/internal/config"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/internal/core/services"
	"livon-client/internal/platform/logger"
	"livon-client/internal/platform/telemetry"
	"livon-client/internal/plugins/httpapi"
	redisPlugin "livon-client/internal/plugins/redis"
	"livon-client/internal/plugins/stomp"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var errQuit = errors.New("quit requested")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "livon-client:", err)
		os.Exit(1)
	}
}

func run() error {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Session.Room == "" {
		return errors.New("CHAT_ROOM is required")
	}

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	} else {
		defer func() {
			log.Info("flushing telemetry...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error("telemetry shutdown failed", "err", err)
			}
		}()
	}

	// Auth
	tokens := services.NewStaticTokenSource(log, cfg.Session.Token)
	identity := tokens.Identity()
	if cfg.Session.User != "" {
		identity.UserID = cfg.Session.User
	}
	ctx, log = logger.ForRoom(ctx, log, cfg.Session.Room, identity)

	// Adapters
	api := httpapi.NewClient(log, cfg.API, cfg.Service.Name, tokens)
	console := services.NewChannelNotifier(log, 256)
	notifiers := services.FanOut{console}

	var relay *redisPlugin.Relay
	if cfg.Redis.URL != "" {
		var rdb *redis.Client
		if rdb, err = redisPlugin.NewRedisClient(ctx, cfg.Redis); err != nil {
			log.Error("redis connection failed", "url", cfg.Redis.URL, "err", err)
			return err
		}
		defer rdb.Close()
		log.Info("redis connected")
		relay = redisPlugin.NewRelay(log, rdb,
			redisPlugin.NewRedisPresenceStore(rdb, cfg.Redis.PresenceTTL),
			redisPlugin.NewEventStream(rdb, cfg.Redis.StreamMaxLen),
			256,
		)
		notifiers = append(notifiers, relay)
	}

	// Session
	sess, err := session.New(log, session.Options{
		RoomID:         cfg.Session.Room,
		UserID:         identity.UserID,
		Endpoint:       cfg.Broker.URL,
		OptimisticEcho: cfg.Session.OptimisticEcho,
		TypingQuiet:    cfg.Typing.Quiet,
		TypingExpiry:   cfg.Typing.Expiry,
		Reconnect:      reconnect.OptionsFromConfig(cfg.Reconnect),
	}, session.Deps{
		Dialer: stomp.NewDialer(log, stomp.Options{
			HandshakeTimeout: cfg.Broker.HandshakeTimeout,
			Heartbeat:        cfg.Broker.Heartbeat,
			WriteTimeout:     cfg.Broker.WriteTimeout,
		}),
		Tokens:   tokens,
		History:  httpapi.NewHistoryClient(api, cfg.API.HistoryPageSize),
		Uploader: httpapi.NewUploadClient(api),
		Notifier: contracts.Notifier(notifiers),
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			log.Warn("session close failed", "err", err)
		}
		if relay != nil {
			relay.Flush()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	r := newRenderer(os.Stdout, identity.UserID)
	g.Go(func() error { return r.run(gctx, sess, console.Events()) })
	g.Go(func() error { return readInput(gctx, sess, os.Stdin, r) })

	if err := sess.Start(gctx); err != nil {
		log.Error("session start failed", "err", err)
		stop()
		_ = g.Wait()
		return err
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutting down")
	return nil
}

// readInput turns stdin lines into session actions until /quit or ctx ends.
func readInput(ctx context.Context, sess *session.Session, in io.Reader, r *renderer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			cmd := parseCommand(line)
			if err := execute(ctx, sess, cmd); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				r.failure(err)
			}
		}
	}
}

// chatActions is the part of a session the input loop drives.
type chatActions interface {
	SendText(ctx context.Context, content string) (domain.Message, error)
	SendAttachment(ctx context.Context, file domain.File, caption string) (domain.Message, error)
	StartTyping() error
}

// execute runs one command. Stdin delivers whole lines, so a line is not
// treated as typing activity; "/typing" announces it explicitly.
func execute(ctx context.Context, sess chatActions, cmd command) error {
	switch cmd.kind {
	case cmdQuit:
		return errQuit
	case cmdTyping:
		return sess.StartTyping()
	case cmdFile:
		data, err := os.ReadFile(cmd.path)
		if err != nil {
			return err
		}
		_, err = sess.SendAttachment(ctx, domain.File{Name: cmd.fileName(), Data: data}, cmd.text)
		return err
	case cmdText:
		_, err := sess.SendText(ctx, cmd.text)
		return err
	}
	return nil
}
