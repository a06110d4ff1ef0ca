package pool

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/minify-ffi"
)

func serveRequests(t *testing.T, bridge Bridge, requests ...*request) []response {
	t.Helper()
	var in, out bytes.Buffer
	encoder := encMode.NewEncoder(&in)
	for _, req := range requests {
		require.NoError(t, encoder.Encode(req))
	}
	require.NoError(t, Serve(&in, &out, bridge))

	var responses []response
	decoder := decMode.NewDecoder(&out)
	for {
		var resp response
		err := decoder.Decode(&resp)
		if errors.Is(err, io.EOF) {
			return responses
		}
		require.NoError(t, err)
		responses = append(responses, resp)
	}
}

func TestServe(t *testing.T) {
	responses := serveRequests(t, &fakeBridge{},
		&request{ID: 1, Op: opConfigure, Config: map[string]string{"case": "upper"}},
		&request{ID: 2, Op: opMinify, MediaType: "text/plain", Input: []byte(" a  b ")},
		&request{ID: 3, Op: opMinify, MediaType: "bogus/type", Input: []byte("x")},
		&request{ID: 4, Op: opConfigure, Config: map[string]string{"bogus": "1"}},
		&request{ID: 5, Op: "compress"},
	)
	require.Len(t, responses, 5)

	require.Equal(t, uint64(1), responses[0].ID)
	require.NoError(t, responses[0].err(""))

	require.Equal(t, "A B", string(responses[1].Output))
	require.NoError(t, responses[1].err("text/plain"))

	require.Equal(t, errorMinification, responses[2].Kind)
	require.ErrorAs(t, responses[2].err("bogus/type"), new(*minify.MinificationError))

	require.Equal(t, errorConfiguration, responses[3].Kind)
	require.ErrorAs(t, responses[3].err(""), new(*minify.ConfigurationError))

	require.Equal(t, errorWorker, responses[4].Kind)
	require.EqualError(t, responses[4].err(""), `worker: unknown operation "compress"`)
}

func TestServeBinaryInput(t *testing.T) {
	input := []byte("\xff\x00\xfe")
	responses := serveRequests(t, &fakeBridge{},
		&request{ID: 1, Op: opMinify, MediaType: "text/plain", Input: input},
	)
	require.Len(t, responses, 1)
	require.Equal(t, input, responses[0].Output)
}

func TestServeEmptyStream(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Serve(bytes.NewReader(nil), &out, &fakeBridge{}))
	require.Zero(t, out.Len())
}

func TestServeMalformedRequest(t *testing.T) {
	var out bytes.Buffer
	err := Serve(bytes.NewReader([]byte{0xff, 0xff}), &out, &fakeBridge{})
	require.Error(t, err)
}
