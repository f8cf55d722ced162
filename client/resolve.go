package client

import (
	"context"
	"fmt"

	"pixie-rpc/registry"
)

// resolve finds the address to dial: the static endpoint, else the server's
// pixie.connect property, else a discovered instance.
func (c *Client) resolve(ctx context.Context) (string, error) {
	if c.cfg.Endpoint != "" {
		return c.cfg.Endpoint, nil
	}

	if c.server == nil {
		return "", fmt.Errorf("%w: no endpoint configured and no server to ask", ErrNotConnected)
	}

	status := c.server.Status()
	if !status.Ready() {
		return "", fmt.Errorf("%w: server connected=%t logged_in=%t", ErrNotConnected, status.Connected, status.LoggedIn)
	}

	props, err := c.server.Properties(ctx, []string{registry.PropertyConnect})
	if err != nil {
		return "", fmt.Errorf("read %s: %w", registry.PropertyConnect, err)
	}
	if addr := props[registry.PropertyConnect]; addr != "" {
		return addr, nil
	}

	if c.discovery != nil {
		instances, err := c.discovery.Discover(ctx, registry.PixieService)
		if err != nil {
			return "", fmt.Errorf("discover %s: %w", registry.PixieService, err)
		}
		if len(instances) > 0 {
			inst, err := c.balancer.Pick(instances)
			if err != nil {
				return "", err
			}
			c.logger.Debug().Str("balancer", c.balancer.Name()).Str("addr", inst.Addr).Int("instances", len(instances)).Msg("picked discovered pixie instance")
			return inst.Addr, nil
		}
	}

	return "", fmt.Errorf("%w: server has no %s", ErrNotConnected, registry.PropertyConnect)
}
