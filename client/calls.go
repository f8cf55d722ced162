package client

import (
	"context"
	"fmt"

	"pixie-rpc/codec"
	"pixie-rpc/message"
)

// Plugin fetches the metadata of one plugin.
func (c *Client) Plugin(ctx context.Context, pluginID string) (*message.PluginReply, error) {
	if pluginID == "" {
		return nil, fmt.Errorf("%w: empty plugin id", ErrInvalidArgument)
	}
	reply, err := c.Communicate(ctx, message.PluginInfoRequest(pluginID))
	if err != nil {
		return nil, err
	}
	data, err := decodeData[message.PluginReply](c.codec, reply.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode plugin_info data: %w", err)
	}
	return &data, nil
}

// Image requests a generated or linked image. The image bytes are reply.Bytes().
// An incomplete request fails with ErrInvalidArgument and nothing is sent.
func (c *Client) Image(ctx context.Context, req message.ImageRequest) (*message.Reply, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil image request", ErrInvalidArgument)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.Communicate(ctx, req.Request())
}

// decodeData decodes the "data" field of a raw reply into T.
func decodeData[T any](cdc codec.Codec, raw []byte) (T, error) {
	var envelope struct {
		Data T `msgpack:"data" json:"data"`
	}
	err := cdc.Decode(raw, &envelope)
	return envelope.Data, err
}
