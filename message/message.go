// Package message defines the envelopes exchanged with a pixie peer.
//
// A Request is a plain string-keyed map tagged with a "name". There is no
// correlation id and no version field: the socket is strictly request-then-reply,
// so a reply always belongs to the request sent just before it.
//
//   - On request: "name" selects the operation, the other keys are its arguments.
//   - On reply:   "data" carries the payload, or "error" (plus an optional "code") a failure.
package message

import (
	"errors"
	"fmt"
)

// Request names understood by pixie.
const (
	NamePluginInfo    = "plugin_info"
	NameImageGenerate = "image_generate"
	NameImageLink     = "image_link"
)

// Envelope keys.
const (
	KeyName  = "name"
	KeyData  = "data"
	KeyError = "error"
	KeyCode  = "code"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Request is an outbound message. Values must be encodable by the codec in use.
type Request map[string]any

// Name returns the operation tag, or "" when missing.
func (r Request) Name() string {
	name, _ := r[KeyName].(string)
	return name
}

// Validate checks that the request carries a name.
func (r Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidArgument)
	}
	if r.Name() == "" {
		return fmt.Errorf("%w: request has no %q", ErrInvalidArgument, KeyName)
	}
	return nil
}

// PluginInfoRequest asks pixie for the metadata of one plugin.
func PluginInfoRequest(pluginID string) Request {
	return Request{
		KeyName: NamePluginInfo,
		"id":    pluginID,
	}
}

// PluginInfo describes an installed pixie plugin.
type PluginInfo struct {
	ID          string `msgpack:"id" json:"id"`
	Name        string `msgpack:"name" json:"name"`
	Shortname   string `msgpack:"shortname" json:"shortname"`
	Author      string `msgpack:"author" json:"author"`
	Website     string `msgpack:"website" json:"website"`
	Description string `msgpack:"description" json:"description"`
	Version     string `msgpack:"version" json:"version"`
	Site        string `msgpack:"site" json:"site"`
}

// PluginReply is the data payload of a plugin_info reply.
type PluginReply struct {
	Info        PluginInfo `msgpack:"info" json:"info"`
	DefaultSite string     `msgpack:"default_site" json:"default_site"`
	Version     string     `msgpack:"version" json:"version"`
	VersionWeb  string     `msgpack:"version_web" json:"version_web"`
	VersionDB   string     `msgpack:"version_db" json:"version_db"`
}
