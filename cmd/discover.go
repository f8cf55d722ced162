package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"pixie-rpc/registry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the pixie instances registered in etcd",
	RunE:  runDiscover,
}

func init() {
	key := "watch"
	discoverCmd.Flags().Bool(key, false, WrapString("Keep running and print the instance list on every change"))
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	if err := BindCommandFlags(cmd); err != nil {
		return err
	}
	conf := GetEtcdConfig()
	if len(conf.Endpoints) == 0 {
		return fmt.Errorf("discover needs --etcd-endpoints")
	}
	logger := NewLogger(viper.GetString("log-level"))

	reg, err := connectEtcd(cmd.Context(), conf, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	ctx := cmd.Context()
	props, err := reg.Properties(ctx, []string{registry.PropertyConnect})
	if err != nil {
		return err
	}
	if addr := props[registry.PropertyConnect]; addr != "" {
		fmt.Printf("%s = %s\n", registry.PropertyConnect, addr)
	}

	instances, err := reg.Discover(ctx, registry.PixieService)
	if err != nil {
		return err
	}
	printInstances(instances)

	if !viper.GetBool("watch") {
		return nil
	}
	for instances := range reg.Watch(ctx, registry.PixieService) {
		printInstances(instances)
	}
	return nil
}

func printInstances(instances []registry.ServiceInstance) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDR\tWEIGHT\tVERSION")
	for _, inst := range instances {
		fmt.Fprintf(w, "%s\t%d\t%s\n", inst.Addr, inst.Weight, inst.Version)
	}
	_ = w.Flush()
}
