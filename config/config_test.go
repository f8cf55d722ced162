package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultClient(t *testing.T) {
	c := DefaultClient()
	if c.ConnectTimeout != 5*time.Second || c.SendTimeout != 5*time.Second || c.RecvTimeout != 30*time.Second {
		t.Fatalf("unexpected default timeouts: %v %v %v", c.ConnectTimeout, c.SendTimeout, c.RecvTimeout)
	}
	if c.HighWaterMark != 1000 {
		t.Fatalf("expect high-water mark 1000, got %d", c.HighWaterMark)
	}
}

func TestClientValidate(t *testing.T) {
	// no endpoint and no etcd is allowed, the client then reports not connected
	c := DefaultClient()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	c.Endpoint = "tcp://127.0.0.1:7006"
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	c.RateLimit = 5
	c.RateBurst = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expect error for zero burst")
	}

	c = DefaultClient()
	c.Etcd.Endpoints = []string{"127.0.0.1:2379"}
	c.RetryCount = -1
	if err := c.Validate(); err == nil {
		t.Fatal("expect error for negative retries")
	}
}

func TestClientString(t *testing.T) {
	c := DefaultClient()
	c.Etcd.Endpoints = []string{"10.0.0.1:2379"}
	out := c.String()
	for _, want := range []string{"PIXIE CLIENT", "pixie.connect", "10.0.0.1:2379", "(anonymous)", "Rate Limit"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() lacks %q:\n%s", want, out)
		}
	}
}
