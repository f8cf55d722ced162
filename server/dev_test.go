package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pixie-rpc/client"
	"pixie-rpc/config"
	"pixie-rpc/message"

	"github.com/stretchr/testify/require"
)

func TestDevService(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "c.png"), []byte("link-png"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "generated", "2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "generated", "2", "5_64.png"), []byte("gen-png"), 0o644))

	svr := NewServer(nil, testLogger)
	dev := &DevService{
		Plugins:     map[string]string{"sample": "Sample Plugin"},
		DefaultSite: "example.org",
		Version:     "9.9.9",
		ImageDir:    dir,
	}
	dev.Register(svr)
	addr := startServer(t, svr)

	c := newClient(t, config.Client{Endpoint: addr}, client.Deps{})
	ctx := context.Background()

	plugin, err := c.Plugin(ctx, "sample")
	require.NoError(t, err)
	require.Equal(t, "Sample Plugin", plugin.Info.Name)
	require.Equal(t, "9.9.9", plugin.VersionDB)

	reply, err := c.Image(ctx, message.LinkRequest{L1: "a", L2: "b", L3: "c", Type: "png"})
	require.NoError(t, err)
	require.Equal(t, []byte("link-png"), reply.Bytes())

	reply, err = c.Image(ctx, message.GenerateRequest{ID: 5, ItemType: 2, Size: 64})
	require.NoError(t, err)
	require.Equal(t, []byte("gen-png"), reply.Bytes())

	var remote *client.RemoteError
	_, err = c.Image(ctx, message.LinkRequest{L1: "..", L2: "..", L3: "etc"})
	require.ErrorAs(t, err, &remote)
	require.Equal(t, int64(CodeBadRequest), remote.Code)

	_, err = c.Image(ctx, message.LinkRequest{L1: "x", L2: "y", L3: "z"})
	require.ErrorAs(t, err, &remote)
	require.Equal(t, int64(CodeUnknownRequest), remote.Code)

	_, err = c.Plugin(ctx, "other")
	require.ErrorAs(t, err, &remote)
}
