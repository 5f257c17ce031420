package main

import (
	"context"
	"net"
	"testing"

	"github.com/go-kit/log"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/enclaveapi"
)

func TestParseEnclaveAddr(t *testing.T) {
	for _, addr := range []string{"vsock://16:5000", "tcp://127.0.0.1:5000"} {
		if _, err := parseEnclaveAddr(addr); err != nil {
			t.Errorf("%s: %v", addr, err)
		}
	}

	for _, addr := range []string{"16:5000", "vsock://16", "vsock://x:5000", "vsock://16:port", "unix:///tmp/enclave.sock"} {
		if _, err := parseEnclaveAddr(addr); err == nil {
			t.Errorf("%s: want error", addr)
		}
	}
}

func TestParseEnclaveAddrTCP(t *testing.T) {
	keys, err := confidential.NewKeyManager()
	if err != nil {
		t.Fatal(err)
	}
	server := enclaveapi.NewServer(confidential.NewEngine(keys), nil, log.NewNopLogger())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go server.ServeConn(context.Background(), conn)
		}
	}()

	dial, err := parseEnclaveAddr("tcp://" + listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	if err := enclaveapi.NewClient(dial, log.NewNopLogger()).Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
