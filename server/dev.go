package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"pixie-rpc/message"
)

// DevService answers plugin_info from a fixed catalogue and serves images
// from a directory. It stands in for a real pixie peer during development.
//
// Image lookup:
//
//	image_link     {link: "a/b/c", type: "png"} → <dir>/a/b/c.png (or <dir>/a/b/c without type)
//	image_generate {id, item_type, size}        → <dir>/generated/<item_type>/<id>_<size>.png
type DevService struct {
	Plugins     map[string]string
	DefaultSite string
	Version     string
	ImageDir    string
}

// Register installs the service's handlers on svr.
func (d *DevService) Register(svr *Server) {
	svr.Handle(message.NamePluginInfo, d.pluginInfo)
	svr.Handle(message.NameImageLink, d.imageLink)
	svr.Handle(message.NameImageGenerate, d.imageGenerate)
}

func (d *DevService) pluginInfo(_ context.Context, req message.Request) (any, error) {
	id, _ := req["id"].(string)
	name, ok := d.Plugins[id]
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("unknown plugin %q", id), Code: CodeUnknownRequest}
	}
	return message.PluginReply{
		Info: message.PluginInfo{
			ID:        id,
			Name:      name,
			Shortname: id,
			Version:   d.Version,
			Site:      d.DefaultSite,
		},
		DefaultSite: d.DefaultSite,
		Version:     d.Version,
		VersionWeb:  d.Version,
		VersionDB:   d.Version,
	}, nil
}

func (d *DevService) imageLink(_ context.Context, req message.Request) (any, error) {
	link, _ := req["link"].(string)
	if strings.Count(link, "/") != 2 {
		return nil, &Error{Message: "link must be l1/l2/l3", Code: CodeBadRequest}
	}
	name := link
	if typ, _ := req["type"].(string); typ != "" {
		name += "." + typ
	}
	return d.readImage(name)
}

func (d *DevService) imageGenerate(_ context.Context, req message.Request) (any, error) {
	id, ok1 := asInt64(req["id"])
	itemType, ok2 := asInt64(req["item_type"])
	size, ok3 := asInt64(req["size"])
	if !ok1 || !ok2 || !ok3 {
		return nil, &Error{Message: "image_generate needs integer id, item_type and size", Code: CodeBadRequest}
	}
	return d.readImage(fmt.Sprintf("generated/%d/%d_%d.png", itemType, id, size))
}

// readImage reads name below ImageDir. Names escaping the directory are rejected.
func (d *DevService) readImage(name string) ([]byte, error) {
	if d.ImageDir == "" {
		return nil, &Error{Message: "no image directory configured", Code: CodeInternal}
	}
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return nil, &Error{Message: fmt.Sprintf("invalid image path %q", name), Code: CodeBadRequest}
	}
	data, err := os.ReadFile(filepath.Join(d.ImageDir, filepath.FromSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Message: fmt.Sprintf("image %q not found", name), Code: CodeUnknownRequest}
	}
	return data, err
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	default:
		return 0, false
	}
}
