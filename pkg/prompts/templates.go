package prompts

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/nikolalohinski/gonja"
)

// TemplateFormat is the format of the template.
type TemplateFormat string

const (
	// TemplateFormatGoTemplate is the format for go-template.
	TemplateFormatGoTemplate TemplateFormat = "go-template"
	// TemplateFormatJinja2 is the format for jinja2.
	TemplateFormatJinja2 TemplateFormat = "jinja2"
)

// ErrInvalidTemplateFormat is the error when the template format is invalid.
var ErrInvalidTemplateFormat = errors.New("invalid template format")

// Template is a parsed prompt template.
type Template struct {
	format TemplateFormat
	text   string
	goTmpl *template.Template
}

// New parses the template text in the format.
func New(format TemplateFormat, text string) (*Template, error) {
	t := &Template{format: format, text: text}
	switch format {
	case TemplateFormatGoTemplate:
		tmpl, err := template.New("prompt").
			Option("missingkey=error").
			Funcs(sprig.TxtFuncMap()).
			Parse(text)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse template")
		}
		t.goTmpl = tmpl
	case TemplateFormatJinja2:
		if _, err := gonja.FromString(text); err != nil {
			return nil, errors.Wrap(err, "failed to parse template")
		}
	default:
		return nil, errors.Wrapf(ErrInvalidTemplateFormat, "format %q", format)
	}
	return t, nil
}

// Must is like New but panics on error.
func Must(format TemplateFormat, text string) *Template {
	t, err := New(format, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Format returns the template format.
func (t *Template) Format() TemplateFormat {
	return t.format
}

// Render renders the template with the values.
func (t *Template) Render(values map[string]any) (string, error) {
	switch t.format {
	case TemplateFormatJinja2:
		// gonja templates are not safe for concurrent execution
		tpl, err := gonja.FromString(t.text)
		if err != nil {
			return "", errors.Wrap(err, "failed to parse template")
		}
		out, err := tpl.Execute(values)
		if err != nil {
			return "", errors.Wrap(err, "failed to render template")
		}
		return out, nil
	default:
		var buf bytes.Buffer
		if err := t.goTmpl.Execute(&buf, values); err != nil {
			return "", errors.Wrap(err, "failed to render template")
		}
		return buf.String(), nil
	}
}

// Render parses and renders the template text.
func Render(format TemplateFormat, text string, values map[string]any) (string, error) {
	t, err := New(format, text)
	if err != nil {
		return "", err
	}
	return t.Render(values)
}
