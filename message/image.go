package message

import (
	"fmt"
	"strings"
)

// ImageRequest is one of GenerateRequest or LinkRequest.
type ImageRequest interface {
	Validate() error
	Request() Request
	isImageRequest()
}

// GenerateRequest asks pixie to render an image for an item.
type GenerateRequest struct {
	ID       int64
	ItemType int64
	Size     int64
	// CommandID is sent as an explicit nil when unset.
	CommandID *int64
}

func (GenerateRequest) isImageRequest() {}

func (g GenerateRequest) Validate() error {
	if g.ID == 0 || g.ItemType == 0 || g.Size == 0 {
		return fmt.Errorf("%w: image_generate needs id, item_type and size (got %d, %d, %d)",
			ErrInvalidArgument, g.ID, g.ItemType, g.Size)
	}
	return nil
}

func (g GenerateRequest) Request() Request {
	var commandID any
	if g.CommandID != nil {
		commandID = *g.CommandID
	}
	return Request{
		KeyName:      NameImageGenerate,
		"id":         g.ID,
		"item_type":  g.ItemType,
		"size":       g.Size,
		"command_id": commandID,
	}
}

// LinkRequest asks pixie for an image that already exists under l1/l2/l3.
type LinkRequest struct {
	L1, L2, L3 string
	// Type is sent as nil when empty.
	Type string
}

func (LinkRequest) isImageRequest() {}

func (l LinkRequest) Validate() error {
	if l.L1 == "" || l.L2 == "" || l.L3 == "" {
		return fmt.Errorf("%w: image_link needs all of l1, l2 and l3", ErrInvalidArgument)
	}
	return nil
}

// Link joins the three path segments.
func (l LinkRequest) Link() string {
	return strings.Join([]string{l.L1, l.L2, l.L3}, "/")
}

func (l LinkRequest) Request() Request {
	var typ any
	if l.Type != "" {
		typ = l.Type
	}
	return Request{
		KeyName: NameImageLink,
		"link":  l.Link(),
		"type":  typ,
	}
}

// ImageParams is the loose parameter bag used by the CLI and HTTP callers.
// Zero values count as unset.
type ImageParams struct {
	L1, L2, L3 string
	Type       string

	ID        int64
	ItemType  int64
	Size      int64
	CommandID *int64
}

// ImageRequest selects the request shape from whichever group is complete.
// Generation wins when both are.
func (p ImageParams) ImageRequest() (ImageRequest, error) {
	if p.ID != 0 && p.ItemType != 0 && p.Size != 0 {
		return GenerateRequest{ID: p.ID, ItemType: p.ItemType, Size: p.Size, CommandID: p.CommandID}, nil
	}
	if p.L1 != "" && p.L2 != "" && p.L3 != "" {
		return LinkRequest{L1: p.L1, L2: p.L2, L3: p.L3, Type: p.Type}, nil
	}
	return nil, fmt.Errorf("%w: image needs either (id, item_type, size) or (l1, l2, l3)", ErrInvalidArgument)
}

// ImageGenerate builds an image_generate request.
func ImageGenerate(g GenerateRequest) Request {
	return g.Request()
}

// ImageLink builds an image_link request.
func ImageLink(l LinkRequest) Request {
	return l.Request()
}
