package server

import (
	"context"
	"testing"
	"time"

	"pixie-rpc/client"
	"pixie-rpc/config"
	"pixie-rpc/message"
	"pixie-rpc/registry"
)

func setupServerAndClient(b *testing.B) (*Server, *client.Client) {
	svr := NewServer(nil, testLogger)
	svr.Handle("echo", func(ctx context.Context, req message.Request) (any, error) {
		return req["n"], nil
	})
	if err := svr.Listen("tcp://127.0.0.1:0"); err != nil {
		b.Fatal(err)
	}
	go svr.Serve(context.Background())

	// resolve through discovery, the way a client without a static endpoint does
	reg := registry.NewMemoryRegistry()
	reg.SetStatus(registry.Status{Connected: true, LoggedIn: true})
	reg.Register(context.Background(), registry.PixieService, registry.ServiceInstance{Addr: svr.Addr(), Weight: 1}, 10)

	cli := client.New(config.Client{}, client.Deps{Server: reg, Discovery: reg, Logger: testLogger})
	return svr, cli
}

// Scenario 1: one goroutine calling serially
func BenchmarkSerialCall(b *testing.B) {
	svr, cli := setupServerAndClient(b)
	b.Cleanup(func() {
		cli.Close()
		svr.Shutdown(3 * time.Second)
	})

	ctx := context.Background()
	req := message.Request{message.KeyName: "echo", "n": 1}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := cli.Communicate(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

// Scenario 2: many goroutines sharing one client; the queue serialises them
func BenchmarkConcurrentCall(b *testing.B) {
	svr, cli := setupServerAndClient(b)
	b.Cleanup(func() {
		cli.Close()
		svr.Shutdown(3 * time.Second)
	})

	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		req := message.Request{message.KeyName: "echo", "n": 1}
		for pb.Next() {
			if _, err := cli.Communicate(ctx, req); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
