package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/cloudx-io/confidentialbid/api"
	"github.com/cloudx-io/confidentialbid/auction"
	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/debug"
	"github.com/cloudx-io/confidentialbid/enclaveapi"
	"github.com/cloudx-io/confidentialbid/events"
	"github.com/cloudx-io/confidentialbid/ledger"
	"github.com/cloudx-io/confidentialbid/metrics"
	"github.com/cloudx-io/confidentialbid/store"
	"github.com/cloudx-io/confidentialbid/store/memstore"
	"github.com/cloudx-io/confidentialbid/store/pgstore"
)

func main() {
	err := exe(os.Stderr, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp), errors.Is(err, context.Canceled):
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func exe(stderr io.Writer, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	fs := flag.NewFlagSet("auctiond", flag.ContinueOnError)
	var (
		apiAddr         = fs.String("api-addr", ":4711", "public API HTTP server address")
		debugAddr       = fs.String("debug-addr", ":4712", "private debug HTTP server address")
		storeConnStr    = fs.String("store-conn-str", "mem://store", "store connection string")
		enclaveAddr     = fs.String("enclave", "", "confidential compute enclave, vsock://<cid>:<port> or tcp://<host>:<port> (default in-process)")
		genesisPath     = fs.String("genesis", "", "ledger genesis JSON file")
		redisAddr       = fs.String("redis-addr", "", "Redis address for event notifications (optional)")
		redisPassword   = fs.String("redis-password", "", "Redis password")
		redisDB         = fs.Int("redis-db", 0, "Redis database")
		redisChannel    = fs.String("redis-channel", events.DefaultChannel, "Redis pub/sub channel")
		callerTokens    = fs.String("caller-tokens", "", "JSON file of caller address to bearer token; without it callers are not authenticated")
		metricsInterval = fs.Duration("metrics-interval", 30*time.Second, "how often to refresh store gauges")
		logLevel        = fs.String("log-level", "info", "debug, info, warn, error")
		_               = fs.String("config", "", "config file")
	)
	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("CONFIDENTIALBID"),
	); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(log.NewSyncWriter(stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))
	}

	level.Debug(logger).Log("msg", "creating store")

	var st store.Store
	{
		switch {
		case strings.HasPrefix(*storeConnStr, "postgres"):
			level.Info(logger).Log("store", "postgres")
			s, err := pgstore.NewStore(ctx, *storeConnStr, log.With(logger, "module", "store"))
			if err != nil {
				return fmt.Errorf("create Postgres store: %w", err)
			}
			defer func() {
				level.Debug(logger).Log("msg", "closing Postgres store")
				if err := s.Close(); err != nil {
					level.Error(logger).Log("msg", "close Postgres store failed", "err", err)
				}
			}()
			st = s

		default:
			level.Warn(logger).Log("store", "in-memory")
			st = memstore.NewStore()
		}
	}

	level.Debug(logger).Log("msg", "connecting confidential compute")

	var (
		compute  core.ConfidentialCompute
		revealer api.Revealer
		keys     api.KeySource
	)
	{
		switch {
		case *enclaveAddr != "":
			dial, err := parseEnclaveAddr(*enclaveAddr)
			if err != nil {
				return err
			}
			client := enclaveapi.NewClient(dial, logger)
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("ping enclave %s: %w", *enclaveAddr, err)
			}
			level.Info(logger).Log("compute", "enclave", "addr", *enclaveAddr)
			compute, revealer, keys = client, client, client

		default:
			km, err := confidential.NewKeyManager()
			if err != nil {
				return fmt.Errorf("create key manager: %w", err)
			}
			level.Warn(logger).Log("compute", "in-process")
			engine := confidential.NewEngine(km, confidential.WithLogger(logger))
			compute, revealer, keys = engine, engine, km
		}
	}

	level.Debug(logger).Log("msg", "loading ledger")

	var escrow *ledger.Ledger
	{
		switch {
		case *genesisPath != "":
			f, err := os.Open(*genesisPath)
			if err != nil {
				return fmt.Errorf("open genesis: %w", err)
			}
			g, err := ledger.ReadGenesis(f)
			f.Close()
			if err != nil {
				return err
			}
			if escrow, err = ledger.FromGenesis(g, logger); err != nil {
				return fmt.Errorf("apply genesis: %w", err)
			}
			level.Info(logger).Log("genesis", *genesisPath, "mints", len(g.Mints), "balances", len(g.Balances))

		default:
			level.Warn(logger).Log("genesis", "none", "msg", "ledger has no mints")
			escrow = ledger.New("", logger)
		}
	}

	var sink events.Sink
	{
		sinks := events.Multi{events.LogSink{Logger: log.With(logger, "module", "events")}}
		if *redisAddr != "" {
			client, err := events.NewRedisClient(*redisAddr, *redisPassword, *redisDB)
			if err != nil {
				return fmt.Errorf("connect Redis: %w", err)
			}
			redisSink := events.NewRedisSink(client, *redisChannel)
			defer redisSink.Close()
			sinks = append(sinks, redisSink)
			level.Info(logger).Log("events", "redis", "addr", *redisAddr, "channel", redisSink.Channel)
		}
		sink = sinks
	}

	service, err := auction.NewService(auction.Config{
		Store:   st,
		Compute: metrics.InstrumentCompute(compute),
		Escrow:  escrow,
		Sink:    sink,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	level.Debug(logger).Log("msg", "starting up")

	g, ctx := errgroup.WithContext(ctx)

	serve := func(name, addr string, handler http.Handler) {
		logger := log.With(logger, "module", name)
		server := &http.Server{Handler: handler, Addr: addr, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			level.Info(logger).Log(name+"_addr", addr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	var apiOpts []api.Option
	if *callerTokens != "" {
		tokens, err := api.LoadCallerTokens(*callerTokens)
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, api.WithCallerTokens(tokens))
		level.Info(logger).Log("caller_tokens", *callerTokens, "callers", len(tokens))
	} else {
		level.Warn(logger).Log("caller_auth", "none", "msg", "request bodies name callers unchecked")
	}

	serve("api", *apiAddr, api.NewHandler(service, revealer, keys, logger, apiOpts...))
	serve("debug", *debugAddr, debug.NewHandler())

	g.Go(func() error {
		logger := log.With(logger, "module", "store_metrics")
		ticker := time.NewTicker(*metricsInterval)
		defer ticker.Stop()
		for {
			if err := store.UpdateMetrics(ctx, st); err != nil && ctx.Err() == nil {
				level.Error(logger).Log("msg", "update metrics", "err", err)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		}
	})

	level.Debug(logger).Log("msg", "running")

	if err := g.Wait(); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "shut down")
	return nil
}

// parseEnclaveAddr turns vsock://cid:port or tcp://host:port into a dialer.
func parseEnclaveAddr(addr string) (enclaveapi.Dialer, error) {
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok {
		return nil, fmt.Errorf("invalid -enclave %q: missing scheme", addr)
	}

	switch scheme {
	case "vsock":
		cidStr, portStr, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("invalid -enclave %q: want vsock://<cid>:<port>", addr)
		}
		cid, err := strconv.ParseUint(cidStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid -enclave cid %q: %w", cidStr, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid -enclave port %q: %w", portStr, err)
		}
		return enclaveapi.VsockDialer(uint32(cid), uint32(port)), nil

	case "tcp":
		return func(ctx context.Context) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", rest)
		}, nil

	default:
		return nil, fmt.Errorf("invalid -enclave %q: unknown scheme %q", addr, scheme)
	}
}
