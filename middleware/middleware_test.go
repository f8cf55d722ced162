package middleware

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pixie-rpc/message"
	"pixie-rpc/transport"

	"github.com/VictoriaMetrics/metrics"
	"github.com/phuslu/log"
)

var testLogger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}

// echoHandler answers immediately with the request name as data.
func echoHandler(ctx context.Context, req message.Request) (*message.Reply, error) {
	return message.NewDataReply(req.Name()), nil
}

// slowHandler waits 200ms or until ctx is done.
func slowHandler(ctx context.Context, req message.Request) (*message.Reply, error) {
	select {
	case <-time.After(200 * time.Millisecond):
		return message.NewDataReply("ok"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var testReq = message.PluginInfoRequest("plug")

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(testLogger)(echoHandler)

	reply, err := handler(context.Background(), testReq)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Data() != message.NamePluginInfo {
		t.Fatalf("expect data %q, got %v", message.NamePluginInfo, reply.Data())
	}
}

func TestTimeoutPass(t *testing.T) {
	// timeout 500ms, fast handler: should return normally
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	if _, err := handler(context.Background(), testReq); err != nil {
		t.Fatalf("expect no error, got '%v'", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	// timeout 50ms, handler needs 200ms: should time out
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	_, err := handler(context.Background(), testReq)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expect timeout error, got '%v'", err)
	}
}

func TestTimeoutCallerCancel(t *testing.T) {
	handler := TimeOutMiddleware(time.Second)(slowHandler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := handler(ctx, testReq)
	if errors.Is(err, ErrTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expect caller cancellation, got '%v'", err)
	}
}

func TestRetryTransportError(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, req message.Request) (*message.Reply, error) {
		if calls.Add(1) < 3 {
			return nil, &transport.TransportError{Op: "recv", Err: transport.ErrTimeout}
		}
		return message.NewDataReply("ok"), nil
	}

	handler := RetryMiddleware(3, time.Millisecond, testLogger)(flaky)
	reply, err := handler(context.Background(), testReq)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Data() != "ok" || calls.Load() != 3 {
		t.Fatalf("expect success on 3rd call, got %v after %d calls", reply.Data(), calls.Load())
	}
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	broken := func(ctx context.Context, req message.Request) (*message.Reply, error) {
		calls.Add(1)
		return nil, &transport.TransportError{Op: "connect", Err: errors.New("connection refused")}
	}

	handler := RetryMiddleware(2, time.Millisecond, testLogger)(broken)
	if _, err := handler(context.Background(), testReq); !transport.IsTransportError(err) {
		t.Fatalf("expect transport error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expect 1 call + 2 retries, got %d", calls.Load())
	}
}

func TestRetrySkipsOtherErrors(t *testing.T) {
	var calls atomic.Int32
	failing := func(ctx context.Context, req message.Request) (*message.Reply, error) {
		calls.Add(1)
		return nil, errors.New("not retryable")
	}

	handler := RetryMiddleware(5, time.Millisecond, testLogger)(failing)
	if _, err := handler(context.Background(), testReq); err == nil {
		t.Fatal("expect error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expect a single call, got %d", calls.Load())
	}
}

func TestRateLimit(t *testing.T) {
	// rate=20 per second, burst=2: the first 2 pass at once, the 3rd waits ~50ms
	handler := RateLimitMiddleware(20, 2)(echoHandler)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := handler(context.Background(), testReq); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("3rd request should have waited for a token, took %s", elapsed)
	}

	// a caller that cannot wait gets an error instead of a token
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if _, err := handler(ctx, testReq); err == nil {
		t.Fatal("expect rate limiter to refuse a short deadline")
	}
}

func TestMetrics(t *testing.T) {
	set := metrics.NewSet()
	remote := func(ctx context.Context, req message.Request) (*message.Reply, error) {
		return message.NewErrorReply("boom", int64(7)), nil
	}

	_, _ = MetricsMiddleware(set)(echoHandler)(context.Background(), testReq)
	_, _ = MetricsMiddleware(set)(remote)(context.Background(), testReq)

	var sb strings.Builder
	set.WritePrometheus(&sb)
	out := sb.String()
	for _, want := range []string{
		`pixie_requests_total{name="plugin_info"} 2`,
		`pixie_request_errors_total{name="plugin_info",kind="remote"} 1`,
		`pixie_request_duration_seconds_bucket`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output lacks %q:\n%s", want, out)
		}
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req message.Request) (*message.Reply, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chained := Chain(mark("a"), LoggingMiddleware(testLogger), mark("b"), TimeOutMiddleware(500*time.Millisecond))
	reply, err := chained(echoHandler)(context.Background(), testReq)
	if err != nil {
		t.Fatalf("expect no error, got '%v'", err)
	}
	if reply == nil {
		t.Fatal("expect non-nil response")
	}
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("expect outer-to-inner order a,b, got %v", order)
	}
}
