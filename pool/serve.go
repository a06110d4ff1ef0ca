package pool

import (
	"errors"
	"fmt"
	"io"

	"github.com/wilsonzlin/minify-ffi"
)

// Bridge is the engine a worker process serves. *minify.Library
// implements it.
type Bridge interface {
	Configure(options minify.Options) error
	Minify(mediaType, text string) (string, error)
	MinifyFile(mediaType, inputPath, outputPath string) error
}

var _ Bridge = (*minify.Library)(nil)

// Serve answers requests read from r on w, one at a time, until r reaches
// EOF. It is the body of a worker process.
func Serve(r io.Reader, w io.Writer, bridge Bridge) error {
	decoder := decMode.NewDecoder(r)
	encoder := encMode.NewEncoder(w)
	for {
		var req request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding request: %w", err)
		}
		if err := encoder.Encode(handle(bridge, &req)); err != nil {
			return fmt.Errorf("encoding response %d: %w", req.ID, err)
		}
	}
}

func handle(bridge Bridge, req *request) *response {
	var err error
	resp := &response{ID: req.ID}
	switch req.Op {
	case opConfigure:
		err = bridge.Configure(fromWire(req.Config))
	case opMinify:
		var output string
		output, err = bridge.Minify(req.MediaType, string(req.Input))
		resp.Output = []byte(output)
	case opMinifyFile:
		err = bridge.MinifyFile(req.MediaType, req.InputPath, req.OutputPath)
	default:
		err = fmt.Errorf("unknown operation %q", req.Op)
	}
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return resp
}
