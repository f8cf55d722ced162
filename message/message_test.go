package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPluginInfoRequest(t *testing.T) {
	req := PluginInfoRequest("plug-1")
	require.Equal(t, NamePluginInfo, req.Name())
	require.Equal(t, "plug-1", req["id"])
	require.NoError(t, req.Validate())
}

func TestRequestValidate(t *testing.T) {
	var nilReq Request
	require.ErrorIs(t, nilReq.Validate(), ErrInvalidArgument)
	require.ErrorIs(t, Request{"id": 1}.Validate(), ErrInvalidArgument)
}

func TestGenerateRequest(t *testing.T) {
	req := GenerateRequest{ID: 1, ItemType: 2, Size: 3}
	require.NoError(t, req.Validate())

	r := ImageGenerate(req)
	require.Equal(t, NameImageGenerate, r.Name())
	require.Equal(t, int64(1), r["id"])
	require.Equal(t, int64(2), r["item_type"])
	require.Equal(t, int64(3), r["size"])

	// command_id must be present and nil, not omitted.
	cid, ok := r["command_id"]
	require.True(t, ok)
	require.Nil(t, cid)

	c := int64(44)
	req.CommandID = &c
	require.Equal(t, int64(44), req.Request()["command_id"])

	require.ErrorIs(t, GenerateRequest{ID: 1, Size: 3}.Validate(), ErrInvalidArgument)
}

func TestLinkRequest(t *testing.T) {
	req := LinkRequest{L1: "a", L2: "b", L3: "c"}
	require.NoError(t, req.Validate())

	r := ImageLink(req)
	require.Equal(t, NameImageLink, r.Name())
	require.Equal(t, "a/b/c", r["link"])
	typ, ok := r["type"]
	require.True(t, ok)
	require.Nil(t, typ)

	req.Type = "thumb"
	require.Equal(t, "thumb", req.Request()["type"])

	require.ErrorIs(t, LinkRequest{L1: "a", L3: "c"}.Validate(), ErrInvalidArgument)
}

func TestImageParamsSelection(t *testing.T) {
	gen, err := ImageParams{ID: 1, ItemType: 2, Size: 3}.ImageRequest()
	require.NoError(t, err)
	require.IsType(t, GenerateRequest{}, gen)

	link, err := ImageParams{L1: "a", L2: "b", L3: "c"}.ImageRequest()
	require.NoError(t, err)
	require.Equal(t, "a/b/c", link.Request()["link"])

	// both groups complete: generation wins
	both, err := ImageParams{ID: 1, ItemType: 2, Size: 3, L1: "a", L2: "b", L3: "c"}.ImageRequest()
	require.NoError(t, err)
	require.Equal(t, NameImageGenerate, both.Request().Name())

	_, err = ImageParams{}.ImageRequest()
	require.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = ImageParams{ID: 1, L1: "a"}.ImageRequest()
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReplyAccessors(t *testing.T) {
	ok := NewDataReply([]byte("png"))
	_, _, failed := ok.Error()
	require.False(t, failed)
	require.Equal(t, []byte("png"), ok.Bytes())

	bad := NewErrorReply("boom", int64(7))
	msg, code, failed := bad.Error()
	require.True(t, failed)
	require.Equal(t, "boom", msg)
	require.Equal(t, int64(7), code)
	require.Nil(t, bad.Data())

	noCode := NewErrorReply("nope", nil)
	_, hasCode := noCode.Fields[KeyCode]
	require.False(t, hasCode)

	empty := &Reply{Fields: map[string]any{KeyError: "", KeyData: "x"}}
	_, _, failed = empty.Error()
	require.False(t, failed)

	var nilReply *Reply
	require.Nil(t, nilReply.Data())
	_, _, failed = nilReply.Error()
	require.False(t, failed)
}
