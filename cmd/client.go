package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"pixie-rpc/message"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	pluginCmd = &cobra.Command{
		Use:   "plugin <id>",
		Short: "Print the metadata of a pixie plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			plugin, err := c.Plugin(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(plugin, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	imageCmd = &cobra.Command{
		Use:   "image",
		Short: "Fetch an image from pixie",
		Long: WrapString(`Fetch an image either by generation parameters (--id, --item-type, --size
and optionally --command-id) or by link (--l1, --l2, --l3 and optionally --type).
Generation wins when both groups are complete.`),
		RunE: runImage,
	}
)

func init() {
	SetupClientFlags(pluginCmd)
	SetupClientFlags(imageCmd)
	setupImageFlags(imageCmd)
}

func setupImageFlags(cmd *cobra.Command) {
	key := "id"
	cmd.Flags().Int64(key, 0, WrapString("Item id to generate an image for"))
	key = "item-type"
	cmd.Flags().Int64(key, 0, WrapString("Item type"))
	key = "size"
	cmd.Flags().Int64(key, 0, WrapString("Image size"))
	key = "command-id"
	cmd.Flags().Int64(key, 0, WrapString("Optional command id passed to the generator"))
	key = "l1"
	cmd.Flags().String(key, "", WrapString("First link segment"))
	key = "l2"
	cmd.Flags().String(key, "", WrapString("Second link segment"))
	key = "l3"
	cmd.Flags().String(key, "", WrapString("Third link segment"))
	key = "type"
	cmd.Flags().String(key, "", WrapString("Optional image type for links"))
	key = "out"
	cmd.Flags().StringP(key, "o", "", WrapString("Write the image to this file instead of stdout"))
}

// imageParams reads the image flags. An unset --command-id stays nil.
func imageParams() message.ImageParams {
	p := message.ImageParams{
		L1:       viper.GetString("l1"),
		L2:       viper.GetString("l2"),
		L3:       viper.GetString("l3"),
		Type:     viper.GetString("type"),
		ID:       viper.GetInt64("id"),
		ItemType: viper.GetInt64("item-type"),
		Size:     viper.GetInt64("size"),
	}
	if viper.IsSet("command-id") {
		cid := viper.GetInt64("command-id")
		p.CommandID = &cid
	}
	return p
}

func runImage(cmd *cobra.Command, _ []string) error {
	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	req, err := imageParams().ImageRequest()
	if err != nil {
		return err
	}
	reply, err := c.Image(cmd.Context(), req)
	if err != nil {
		return err
	}

	data := reply.Bytes()
	if data == nil {
		return fmt.Errorf("reply carries no image data (got %T)", reply.Data())
	}
	if out := viper.GetString("out"); out != "" {
		return os.WriteFile(out, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}
