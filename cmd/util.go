package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pixie-rpc/client"
	"pixie-rpc/codec"
	"pixie-rpc/config"
	"pixie-rpc/loadbalance"
	"pixie-rpc/registry"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// metricsSet collects the series of the running command.
var metricsSet = metrics.NewSet()

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and maps PIXIE_* environment variables onto flags.
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("pixie")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags (own and inherited) to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}

// SetupEtcdFlags adds the etcd connection flags shared by every command.
func SetupEtcdFlags(cmd *cobra.Command) {
	key := "etcd-endpoints"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated etcd endpoints. Used to read pixie.connect and to discover pixie instances"))
	key = "etcd-username"
	cmd.PersistentFlags().String(key, "", WrapString("etcd user, if the cluster has auth enabled"))
	key = "etcd-password"
	cmd.PersistentFlags().String(key, "", WrapString("etcd password"))
	key = "etcd-prefix"
	cmd.PersistentFlags().String(key, "/pixie-rpc", WrapString("Key prefix for properties and service instances"))
	key = "etcd-dial-timeout"
	cmd.PersistentFlags().Duration(key, config.DefaultClient().Etcd.DialTimeout, WrapString("Timeout for the first etcd connection"))
}

// SetupClientFlags adds the pixie connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	def := config.DefaultClient()

	key := "endpoint"
	cmd.Flags().String(key, "", WrapString("Static pixie address (e.g. tcp://127.0.0.1:7006). When empty the address is read from the pixie.connect property in etcd"))
	key = "connect-timeout"
	cmd.Flags().Duration(key, def.ConnectTimeout, WrapString("Timeout for establishing the socket"))
	key = "send-timeout"
	cmd.Flags().Duration(key, def.SendTimeout, WrapString("Timeout for sending one request"))
	key = "recv-timeout"
	cmd.Flags().Duration(key, def.RecvTimeout, WrapString("Timeout for receiving one reply"))
	key = "hwm"
	cmd.Flags().Int(key, def.HighWaterMark, WrapString("High-water mark of the socket and the request queue"))
	key = "call-timeout"
	cmd.Flags().Duration(key, def.CallTimeout, WrapString("Upper bound for a whole call including retries (0 disables)"))
	key = "retries"
	cmd.Flags().Int(key, def.RetryCount, WrapString("How many times to retry a call that failed on the transport"))
	key = "retry-backoff"
	cmd.Flags().Duration(key, def.RetryBackoff, WrapString("Base delay between retries, doubled each attempt"))
	key = "rate-limit"
	cmd.Flags().Float64(key, def.RateLimit, WrapString("Maximum requests per second (0 disables)"))
	key = "rate-burst"
	cmd.Flags().Int(key, def.RateBurst, WrapString("Burst size for the rate limit"))
	key = "balancer"
	cmd.Flags().String(key, def.Balancer, WrapString("How to pick a discovered instance (round-robin, weighted, sticky)"))
	key = "client-id"
	cmd.Flags().String(key, "", WrapString("Key for the sticky balancer. Defaults to the host name"))
}

// GetEtcdConfig reads the etcd settings from viper
func GetEtcdConfig() config.Etcd {
	var endpoints []string
	for _, e := range strings.Split(viper.GetString("etcd-endpoints"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return config.Etcd{
		Endpoints:   endpoints,
		Username:    viper.GetString("etcd-username"),
		Password:    viper.GetString("etcd-password"),
		DialTimeout: viper.GetDuration("etcd-dial-timeout"),
		Prefix:      viper.GetString("etcd-prefix"),
	}
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() config.Client {
	conf := config.Client{
		Endpoint:       viper.GetString("endpoint"),
		Codec:          viper.GetString("codec"),
		ConnectTimeout: viper.GetDuration("connect-timeout"),
		SendTimeout:    viper.GetDuration("send-timeout"),
		RecvTimeout:    viper.GetDuration("recv-timeout"),
		HighWaterMark:  viper.GetInt("hwm"),
		CallTimeout:    viper.GetDuration("call-timeout"),
		RetryCount:     viper.GetInt("retries"),
		RetryBackoff:   viper.GetDuration("retry-backoff"),
		RateLimit:      viper.GetFloat64("rate-limit"),
		RateBurst:      viper.GetInt("rate-burst"),
		Balancer:       viper.GetString("balancer"),
		ClientID:       viper.GetString("client-id"),
		Etcd:           GetEtcdConfig(),
		LogLevel:       viper.GetString("log-level"),
	}
	if conf.ClientID == "" {
		conf.ClientID, _ = os.Hostname()
	}
	return conf
}

// NewLogger returns a console logger on stderr at the given level.
func NewLogger(level string) *log.Logger {
	return &log.Logger{
		Level: log.ParseLevel(level),
		Writer: &log.ConsoleWriter{
			ColorOutput: true,
			Writer:      os.Stderr,
		},
	}
}

// connectEtcd opens the etcd registry and checks the cluster. A failed check
// is logged, not returned: Status then reports not connected and the client
// fails with ErrNotConnected on use.
func connectEtcd(ctx context.Context, conf config.Etcd, logger *log.Logger) (*registry.EtcdRegistry, error) {
	reg, err := registry.NewEtcdRegistry(registry.EtcdConfig{
		Endpoints:   conf.Endpoints,
		Username:    conf.Username,
		Password:    conf.Password,
		DialTimeout: conf.DialTimeout,
		Prefix:      conf.Prefix,
	})
	if err != nil {
		return nil, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, conf.DialTimeout)
	defer cancel()
	if err := reg.Connect(checkCtx); err != nil {
		logger.Warn().Err(err).Strs("endpoints", conf.Endpoints).Msg("etcd not ready")
	}
	return reg, nil
}

// newClient builds a pixie client from the command's flags. The returned
// cleanup closes the client and, if one was opened, the etcd registry.
func newClient(cmd *cobra.Command) (*client.Client, func(), error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, nil, err
	}
	conf := GetClientConfig()
	if err := conf.Validate(); err != nil {
		return nil, nil, err
	}

	logger := NewLogger(conf.LogLevel)
	logger.Debug().Msg(conf.String())
	return buildClient(cmd.Context(), conf, logger)
}

// buildClient wires a client for conf. Without a static endpoint the address
// comes from etcd; with neither, the client has no server and every call
// fails with client.ErrNotConnected.
func buildClient(ctx context.Context, conf config.Client, logger *log.Logger) (*client.Client, func(), error) {
	cdc, err := codec.ParseCodec(conf.Codec)
	if err != nil {
		return nil, nil, err
	}
	balancer, err := loadbalance.New(conf.Balancer, conf.ClientID)
	if err != nil {
		return nil, nil, err
	}

	deps := client.Deps{
		Balancer: balancer,
		Codec:    cdc,
		Logger:   logger,
		Metrics:  metricsSet,
	}

	var reg *registry.EtcdRegistry
	if conf.Endpoint == "" && len(conf.Etcd.Endpoints) > 0 {
		reg, err = connectEtcd(ctx, conf.Etcd, logger)
		if err != nil {
			return nil, nil, err
		}
		deps.Server = reg
		deps.Discovery = reg
	}
	if conf.Endpoint == "" && reg == nil {
		logger.Warn().Msg("no pixie endpoint and no etcd endpoints configured")
	}

	c := client.New(conf, deps)
	cleanup := func() {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing pixie client")
		}
		if reg != nil {
			_ = reg.Close()
		}
	}
	return c, cleanup, nil
}

func dumpMetrics(cmd *cobra.Command, _ []string) {
	if !viper.GetBool("metrics") {
		return
	}
	fmt.Fprintln(os.Stdout)
	metricsSet.WritePrometheus(os.Stdout)
}
