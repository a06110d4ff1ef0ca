package pool

import (
	"errors"

	"github.com/fxamacker/cbor/v2"

	"github.com/wilsonzlin/minify-ffi"
)

// Requests and responses travel as one CBOR data item each over the
// worker's stdin and stdout. Input and output text are byte strings, not
// CBOR text strings, so input that is not valid UTF-8 reaches the engine
// unchanged.

const (
	opConfigure  = "configure"
	opMinify     = "minify"
	opMinifyFile = "minify-file"
)

type request struct {
	ID         uint64            `cbor:"1,keyasint"`
	Op         string            `cbor:"2,keyasint"`
	MediaType  string            `cbor:"3,keyasint,omitempty"`
	Input      []byte            `cbor:"4,keyasint,omitempty"`
	InputPath  string            `cbor:"5,keyasint,omitempty"`
	OutputPath string            `cbor:"6,keyasint,omitempty"`
	Config     map[string]string `cbor:"7,keyasint,omitempty"`
}

type errorKind uint8

const (
	errorNone errorKind = iota
	errorConfiguration
	errorMinification
	errorWorker
)

type response struct {
	ID     uint64    `cbor:"1,keyasint"`
	Output []byte    `cbor:"2,keyasint,omitempty"`
	Error  string    `cbor:"3,keyasint,omitempty"`
	Kind   errorKind `cbor:"4,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("pool: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("pool: CBOR decoder initialization failed: " + err.Error())
	}
}

// errorResponse classifies err into the response's error fields.
func errorResponse(id uint64, err error) *response {
	resp := &response{ID: id, Error: err.Error(), Kind: errorWorker}
	var configErr *minify.ConfigurationError
	var minifyErr *minify.MinificationError
	switch {
	case errors.As(err, &configErr):
		resp.Kind, resp.Error = errorConfiguration, configErr.Message
	case errors.As(err, &minifyErr):
		resp.Kind, resp.Error = errorMinification, minifyErr.Message
	}
	return resp
}

// err rebuilds the typed error a worker reported.
func (r *response) err(mediaType string) error {
	switch r.Kind {
	case errorNone:
		return nil
	case errorConfiguration:
		return &minify.ConfigurationError{Message: r.Error}
	case errorMinification:
		return &minify.MinificationError{MediaType: mediaType, Message: r.Error}
	default:
		return errors.New("worker: " + r.Error)
	}
}

func toWire(options minify.Options) map[string]string {
	if len(options) == 0 {
		return nil
	}
	config := make(map[string]string, len(options))
	for key, value := range options {
		config[key] = value.String()
	}
	return config
}

func fromWire(config map[string]string) minify.Options {
	options := make(minify.Options, len(config))
	for key, value := range config {
		options[key] = minify.StringValue(value)
	}
	return options
}
