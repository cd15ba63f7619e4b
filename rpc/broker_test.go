package rpc

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

func echoServant() Operations {
	return Operations{
		"echo": func(_ context.Context, args []byte) ([]byte, error) {
			return args, nil
		},
		"fail": func(context.Context, []byte) ([]byte, error) {
			return nil, stderrors.New("servant refused")
		},
		"panic": func(context.Context, []byte) ([]byte, error) {
			panic("boom")
		},
	}
}

func TestReference(t *testing.T) {
	tests := []struct {
		ref    Reference
		scheme string
		id     string
		valid  bool
	}{
		{LocalReference("abc"), SchemeLocal, "abc", true},
		{NATSReference("rtm.obj.b1", "abc"), SchemeNATS, "abc", true},
		{WebsocketReference("ws://host:1/rpc", "abc"), SchemeWS, "abc", true},
		{WebsocketReference("wss://host:1/rpc", "abc"), SchemeWSS, "abc", true},
		{Reference("ws://host:1/rpc"), SchemeWS, "", false},
		{Reference("IOR:0000"), "IOR", "", false},
		{Reference("garbage"), "", "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.ref), func(t *testing.T) {
			assert.Equal(t, tt.scheme, tt.ref.Scheme())
			assert.Equal(t, tt.id, tt.ref.ObjectID())
			assert.Equal(t, tt.valid, tt.ref.Valid())
		})
	}

	assert.Equal(t, "rtm.obj.b1.abc", NATSReference("rtm.obj.b1", "abc").Subject())
	assert.Equal(t, "ws://host:1/rpc", WebsocketReference("ws://host:1/rpc", "abc").Endpoint())
}

func TestFrames(t *testing.T) {
	req := request{seq: 7, object: "obj", op: "put", args: []byte{1, 2, 3}}
	got, err := decodeRequest(encodeRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, got)

	rep := replyFor(9, nil, errors.Wrap(errors.ErrObjectNotFound, "x", "y", "z"))
	back, err := decodeReply(encodeReply(rep))
	require.NoError(t, err)
	assert.Equal(t, uint32(9), back.seq)
	_, err = back.outcome("test")
	assert.ErrorIs(t, err, errors.ErrObjectNotFound)

	_, err = decodeRequest([]byte{1, 2})
	assert.True(t, errors.IsInvalid(err))
}

func TestBroker_LocalInvoke(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ctx := context.Background()

	ref := b.Activate(echoServant())
	assert.Equal(t, SchemeLocal, ref.Scheme())
	assert.Equal(t, 1, b.Active())

	out, err := b.Invoke(ctx, ref, "echo", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(out))

	_, err = b.Invoke(ctx, ref, "missing", nil)
	assert.ErrorIs(t, err, ErrBadOperation)

	_, err = b.Invoke(ctx, ref, "panic", nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	_, ok := b.Resolve(ref)
	assert.True(t, ok)
	assert.True(t, b.Deactivate(ref))
	assert.False(t, b.Deactivate(ref))

	_, err = b.Invoke(ctx, ref, "echo", nil)
	assert.ErrorIs(t, err, errors.ErrObjectNotFound)

	_, err = b.Invoke(ctx, Reference("bogus"), "echo", nil)
	assert.True(t, errors.IsInvalid(err))
}

func TestBroker_NATSWithoutClient(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	_, err := b.Invoke(context.Background(), NATSReference("rtm.obj.other", "x"), "echo", nil)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsTransient(err))
}

func TestBroker_Closed(t *testing.T) {
	b := NewBroker()
	ref := b.Activate(echoServant())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.Invoke(context.Background(), ref, "echo", nil)
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
	assert.Equal(t, 0, b.Active())
}

func TestBroker_Websocket(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rpc"
	server := NewBroker(WithWebsocketEndpoint(endpoint))
	mux.Handle("/rpc", server.Handler())
	defer server.Close()

	client := NewBroker()
	defer client.Close()
	ctx := context.Background()

	ref := server.Activate(echoServant())
	require.Equal(t, SchemeWS, ref.Scheme())

	out, err := client.Invoke(ctx, ref, "echo", []byte("over the wire"))
	require.NoError(t, err)
	assert.Equal(t, "over the wire", string(out))

	_, err = client.Invoke(ctx, ref, "fail", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "servant refused")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte{byte(i)}
			out, err := client.Invoke(ctx, ref, "echo", payload)
			assert.NoError(t, err)
			assert.Equal(t, payload, out)
		}(i)
	}
	wg.Wait()

	server.Deactivate(ref)
	_, err = client.Invoke(ctx, ref, "echo", nil)
	assert.ErrorIs(t, err, errors.ErrObjectNotFound)
}
