package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/enclaveapi"
)

const defaultPort = 5000

// EnclaveServer accepts vsock connections and hands each one to a bounded
// pool of workers.
type EnclaveServer struct {
	handler    *enclaveapi.Server
	maxWorkers int
	logger     log.Logger
}

func NewEnclaveServer(handler *enclaveapi.Server, maxWorkers int, logger log.Logger) *EnclaveServer {
	return &EnclaveServer{
		handler:    handler,
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

// Serve accepts connections until ctx is canceled or the listener fails.
// Connections beyond the worker limit are closed immediately.
func (s *EnclaveServer) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	semaphore := make(chan struct{}, s.maxWorkers)
	level.Info(s.logger).Log("msg", "worker pool initialized", "max_workers", s.maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			level.Error(s.logger).Log("msg", "accept failed", "err", err)
			continue
		}

		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handler.ServeConn(ctx, c)
			}(conn)
		default:
			level.Info(s.logger).Log("msg", "no workers available, rejecting connection")
			if err := conn.Close(); err != nil {
				level.Error(s.logger).Log("msg", "close rejected connection", "err", err)
			}
		}
	}
}

// getEnclaveAttester returns the NSM handle, which only exists inside a
// Nitro enclave.
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil || intValue <= 0 {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a positive integer)", key, value)
	}

	return intValue, nil
}

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if err := run(logger); err != nil {
		level.Error(logger).Log("msg", "enclave exited", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger) error {
	maxWorkers, err := getRequiredEnvInt("ENCLAVE_MAX_WORKERS")
	if err != nil {
		return err
	}

	keys, err := confidential.NewKeyManager()
	if err != nil {
		return fmt.Errorf("initialize key manager: %w", err)
	}

	var keyAttester enclaveapi.KeyAttester
	if attester, err := getEnclaveAttester(); err != nil {
		level.Warn(logger).Log("msg", "key responses will not be attested", "err", err)
	} else {
		keyAttester = &nitroKeyAttester{attester: attester, logger: logger}
	}

	engine := confidential.NewEngine(keys, confidential.WithLogger(logger))
	handler := enclaveapi.NewServer(engine, keyAttester, logger)

	listener, err := vsock.Listen(defaultPort, nil)
	if err != nil {
		return fmt.Errorf("create vsock listener: %w", err)
	}
	level.Info(logger).Log("msg", "enclave listening", "vsock_port", defaultPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewEnclaveServer(handler, maxWorkers, logger).Serve(ctx, listener)
}
