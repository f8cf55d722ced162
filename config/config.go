// Package config holds the client and server settings shared by the library and the CLI.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

type Client struct {
	// Endpoint is the static pixie address. When empty the address is looked up
	// through the upstream server.
	Endpoint string
	Codec    string

	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	RecvTimeout    time.Duration
	HighWaterMark  int

	// CallTimeout bounds a whole call including queueing and retries; 0 disables it.
	CallTimeout  time.Duration
	RetryCount   int
	RetryBackoff time.Duration
	// RateLimit is requests per second; 0 disables pacing.
	RateLimit float64
	RateBurst int

	Balancer string
	ClientID string

	Etcd Etcd

	LogLevel string
}

type Etcd struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
	Prefix      string
}

// DefaultClient returns the settings pixie peers are tuned for.
func DefaultClient() Client {
	return Client{
		Codec:          "msgpack",
		ConnectTimeout: 5 * time.Second,
		SendTimeout:    5 * time.Second,
		RecvTimeout:    30 * time.Second,
		HighWaterMark:  1000,
		RetryCount:     0,
		RetryBackoff:   50 * time.Millisecond,
		RateBurst:      1,
		Balancer:       "round-robin",
		Etcd: Etcd{
			DialTimeout: 5 * time.Second,
			Prefix:      "/pixie-rpc",
		},
		LogLevel: "info",
	}
}

// Validate rejects settings the client cannot run with.
func (c *Client) Validate() error {
	if c.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative, got %d", c.RetryCount)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when rate limiting, got %d", c.RateBurst)
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *Client) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Pixie Client")
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = "(from server property pixie.connect)"
	}
	addField("Endpoint", endpoint)
	addField("Codec", c.Codec)
	addField("Connect Timeout", c.ConnectTimeout.String())
	addField("Send Timeout", c.SendTimeout.String())
	addField("Receive Timeout", c.RecvTimeout.String())
	addField("High-Water Mark", strconv.Itoa(c.HighWaterMark))

	addSection("Calls")
	addField("Call Timeout", durationOrOff(c.CallTimeout))
	addField("Retries", strconv.Itoa(c.RetryCount))
	addField("Retry Backoff", c.RetryBackoff.String())
	if c.RateLimit > 0 {
		addField("Rate Limit", fmt.Sprintf("%g/s (burst %d)", c.RateLimit, c.RateBurst))
	} else {
		addField("Rate Limit", "off")
	}
	addField("Balancer", c.Balancer)

	if len(c.Etcd.Endpoints) > 0 {
		addSection("Etcd")
		addField("Prefix", c.Etcd.Prefix)
		user := c.Etcd.Username
		if user == "" {
			user = "(anonymous)"
		}
		addField("User", user)
		for i, endpoint := range c.Etcd.Endpoints {
			addField(strconv.Itoa(i), endpoint)
		}
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Dev server configuration
// --------------------------------------------------------------------------

type Server struct {
	Listen    string
	Advertise string
	Codec     string
	ImageDir  string
	TTL       int64

	// Plugins maps plugin id to display name.
	Plugins     map[string]string
	DefaultSite string

	Etcd Etcd

	LogLevel string
}

func DefaultServer() Server {
	return Server{
		Listen: "tcp://127.0.0.1:7006",
		Codec:  "msgpack",
		TTL:    10,
		Etcd: Etcd{
			DialTimeout: 5 * time.Second,
			Prefix:      "/pixie-rpc",
		},
		LogLevel: "info",
	}
}

// String returns a formatted string representation of the server configuration
func (s *Server) String() string {
	var sb strings.Builder
	sb.WriteString("\nPIXIE DEV SERVER\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Listen", s.Listen))
	if s.Advertise != "" {
		sb.WriteString(fmt.Sprintf("  %-22s: %s (ttl %ds)\n", "Advertise", s.Advertise, s.TTL))
	}
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Codec", s.Codec))
	if s.ImageDir != "" {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Image Directory", s.ImageDir))
	}
	ids := make([]string, 0, len(s.Plugins))
	for id := range s.Plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Plugins", strings.Join(ids, ", ")))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Log Level", s.LogLevel))
	return sb.String()
}

func durationOrOff(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return d.String()
}
