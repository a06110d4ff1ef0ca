package engine

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"
)

// JS backends selectable with the js-engine key.
const (
	JSEngineMinify  = "minify"
	JSEngineEsbuild = "esbuild"
)

var (
	jsMediatypePattern   = regexp.MustCompile(`^(application|text)/(x-)?(java|ecma|j|live)script(1\.[0-5])?$|^module$`)
	jsonMediatypePattern = regexp.MustCompile(`[/+]json$`)
	xmlMediatypePattern  = regexp.MustCompile(`[/+]xml$`)
)

// settings is one complete minifier configuration under construction.
type settings struct {
	css      css.Minifier
	html     html.Minifier
	js       js.Minifier
	jsEngine string
	json     json.Minifier
	svg      svg.Minifier
	xml      xml.Minifier
}

func defaultSettings() *settings {
	return &settings{jsEngine: JSEngineMinify}
}

func (s *settings) apply(key, value string) error {
	var err error
	switch key {
	case "css-precision":
		s.css.Precision, err = parseInt(value)
	case "html-keep-comments":
		s.html.KeepComments, err = parseBool(value)
	case "html-keep-conditional-comments":
		s.html.KeepConditionalComments, err = parseBool(value)
	case "html-keep-special-comments":
		s.html.KeepSpecialComments, err = parseBool(value)
	case "html-keep-default-attr-vals":
		s.html.KeepDefaultAttrVals, err = parseBool(value)
	case "html-keep-document-tags":
		s.html.KeepDocumentTags, err = parseBool(value)
	case "html-keep-end-tags":
		s.html.KeepEndTags, err = parseBool(value)
	case "html-keep-whitespace":
		s.html.KeepWhitespace, err = parseBool(value)
	case "html-keep-quotes":
		s.html.KeepQuotes, err = parseBool(value)
	case "js-precision":
		s.js.Precision, err = parseInt(value)
	case "js-keep-var-names":
		s.js.KeepVarNames, err = parseBool(value)
	case "js-version":
		s.js.Version, err = parseInt(value)
	case "js-engine":
		switch value {
		case JSEngineMinify, JSEngineEsbuild:
			s.jsEngine = value
		default:
			err = fmt.Errorf("unknown engine %q", value)
		}
	case "json-precision":
		s.json.Precision, err = parseInt(value)
	case "json-keep-numbers":
		s.json.KeepNumbers, err = parseBool(value)
	case "svg-keep-comments":
		s.svg.KeepComments, err = parseBool(value)
	case "svg-precision":
		s.svg.Precision, err = parseInt(value)
	case "xml-keep-whitespace":
		s.xml.KeepWhitespace, err = parseBool(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("bad config value for %s: %w", key, err)
	}
	return nil
}

// build registers the configured minifiers on a fresh minify.M. Every
// minifier is copied out of s, so later changes to s do not leak into the
// returned M.
func (s *settings) build() *minify.M {
	cssMinifier := s.css
	htmlMinifier := s.html
	jsonMinifier := s.json
	svgMinifier := s.svg
	xmlMinifier := s.xml

	var jsMinifier minify.Minifier
	if s.jsEngine == JSEngineEsbuild {
		jsMinifier = esbuildMinifier{}
	} else {
		m := s.js
		jsMinifier = &m
	}

	m := minify.New()
	m.Add("text/css", &cssMinifier)
	m.Add("text/html", &htmlMinifier)
	m.Add("image/svg+xml", &svgMinifier)
	m.AddRegexp(jsMediatypePattern, jsMinifier)
	m.AddRegexp(jsonMediatypePattern, &jsonMinifier)
	m.AddRegexp(xmlMediatypePattern, &xmlMinifier)
	m.Add("importmap", &jsonMinifier)
	m.Add("speculationrules", &jsonMinifier)

	aspMinifier := htmlMinifier
	aspMinifier.TemplateDelims = html.ASPTemplateDelims
	m.Add("text/asp", &aspMinifier)
	m.Add("text/x-ejs-template", &aspMinifier)

	phpMinifier := htmlMinifier
	phpMinifier.TemplateDelims = html.PHPTemplateDelims
	m.Add("application/x-httpd-php", &phpMinifier)

	tmplMinifier := htmlMinifier
	tmplMinifier.TemplateDelims = html.GoTemplateDelims
	m.Add("text/x-template", &tmplMinifier)
	m.Add("text/x-go-template", &tmplMinifier)
	m.Add("text/x-mustache-template", &tmplMinifier)
	m.Add("text/x-handlebars-template", &tmplMinifier)
	return m
}

func parseInt(value string) (int, error) {
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", value)
	}
	return int(i), nil
}

func parseBool(value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%q is not a boolean", value)
	}
	return b, nil
}
