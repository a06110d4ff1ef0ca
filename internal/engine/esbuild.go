package engine

import (
	"bytes"
	"errors"
	"io"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
)

// esbuildMinifier minifies JavaScript with esbuild instead of the minify
// library's own JS minifier. esbuild terminates statements with ';', which
// can make short inputs longer; those are written back unchanged.
type esbuildMinifier struct{}

func (esbuildMinifier) Minify(_ *minify.M, w io.Writer, r io.Reader, _ map[string]string) error {
	code, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	result := api.Transform(string(code), api.TransformOptions{
		Loader:            api.LoaderJS,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
	})
	if len(result.Errors) > 0 {
		return errors.New(result.Errors[0].Text)
	}
	out := bytes.TrimRight(result.Code, "\n")
	if len(out) > len(code) {
		out = code
	}
	_, err = w.Write(out)
	return err
}
