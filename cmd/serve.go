package cmd

import (
	"fmt"
	"strings"
	"time"

	"pixie-rpc/codec"
	"pixie-rpc/config"
	"pixie-rpc/middleware"
	"pixie-rpc/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = config.DefaultServer()
	serveCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start a pixie development server",
		Long: WrapString(`Start a pixie-compatible server that answers plugin_info from a fixed
catalogue and serves images from a directory. With --advertise and etcd
endpoints it registers itself and publishes pixie.connect, so clients without
a static endpoint find it.`),
		PreRunE: processServeConfig,
		RunE:    runServe,
	}
)

func init() {
	def := config.DefaultServer()

	key := "listen"
	serveCmd.Flags().String(key, def.Listen, WrapString("Address to bind (port 0 picks a free port)"))
	key = "advertise"
	serveCmd.Flags().String(key, "", WrapString("Routable address to publish in etcd. Nothing is published when empty"))
	key = "ttl"
	serveCmd.Flags().Int64(key, def.TTL, WrapString("Lease TTL in seconds for the registered instance"))
	key = "image-dir"
	serveCmd.Flags().String(key, "", WrapString("Directory images are served from"))
	key = "plugins"
	serveCmd.Flags().String(key, "", WrapString("Comma-separated plugin catalogue in the format 'id=Name,id2=Other Name'"))
	key = "default-site"
	serveCmd.Flags().String(key, "", WrapString("default_site reported in plugin_info"))
}

// processServeConfig reads the configuration from the command line flags and environment variables
func processServeConfig(cmd *cobra.Command, _ []string) error {
	if err := BindCommandFlags(cmd); err != nil {
		return err
	}

	plugins, err := parsePlugins(viper.GetString("plugins"))
	if err != nil {
		return err
	}

	serveCmdConfig.Listen = viper.GetString("listen")
	serveCmdConfig.Advertise = viper.GetString("advertise")
	serveCmdConfig.TTL = viper.GetInt64("ttl")
	serveCmdConfig.Codec = viper.GetString("codec")
	serveCmdConfig.ImageDir = viper.GetString("image-dir")
	serveCmdConfig.Plugins = plugins
	serveCmdConfig.DefaultSite = viper.GetString("default-site")
	serveCmdConfig.Etcd = GetEtcdConfig()
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.Advertise != "" && len(serveCmdConfig.Etcd.Endpoints) == 0 {
		return fmt.Errorf("--advertise needs --etcd-endpoints")
	}
	return nil
}

// parsePlugins parses "id=Name,id2=Name 2".
func parsePlugins(s string) (map[string]string, error) {
	plugins := make(map[string]string)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, name, ok := strings.Cut(entry, "=")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("invalid plugin format: %s (expected id=Name)", entry)
		}
		plugins[id] = name
	}
	return plugins, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := NewLogger(serveCmdConfig.LogLevel)
	fmt.Println(serveCmdConfig.String())

	cdc, err := codec.ParseCodec(serveCmdConfig.Codec)
	if err != nil {
		return err
	}

	svr := server.NewServer(cdc, logger)
	svr.Use(middleware.LoggingMiddleware(logger))
	svr.Use(middleware.MetricsMiddleware(metricsSet))

	dev := &server.DevService{
		Plugins:     serveCmdConfig.Plugins,
		DefaultSite: serveCmdConfig.DefaultSite,
		Version:     Version,
		ImageDir:    serveCmdConfig.ImageDir,
	}
	dev.Register(svr)

	if err := svr.Listen(serveCmdConfig.Listen); err != nil {
		return err
	}

	if serveCmdConfig.Advertise != "" {
		reg, err := connectEtcd(cmd.Context(), serveCmdConfig.Etcd, logger)
		if err != nil {
			return err
		}
		defer reg.Close()
		svr.Advertise(reg, reg, serveCmdConfig.Advertise, serveCmdConfig.TTL)
	}

	served := make(chan error, 1)
	go func() { served <- svr.Serve(cmd.Context()) }()

	var serveErr error
	select {
	case serveErr = <-served:
		if cmd.Context().Err() == nil {
			return serveErr
		}
	case <-cmd.Context().Done():
		serveErr = <-served
	}

	// deregister even though the serve loop already stopped
	logger.Info().Msg("shutting down")
	if err := svr.Shutdown(5 * time.Second); err != nil {
		return err
	}
	return serveErr
}
