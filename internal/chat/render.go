package chat

import (
	"bytes"
	"html/template"
)

// Renderer produces the html form of a message. It must not depend on
// anything but the message itself.
type Renderer interface {
	Render(msg Message) (string, error)
}

const defaultMessageTemplate = `<div class="message" id="m{{.ID}}">{{.Body}}</div>`

// TemplateRenderer renders messages with an html/template, escaping the body.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer parses text as the message template. An empty text
// selects the built-in template.
func NewTemplateRenderer(text string) (*TemplateRenderer, error) {
	if text == "" {
		text = defaultMessageTemplate
	}
	tmpl, err := template.New("message").Parse(text)
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// MustTemplateRenderer is like NewTemplateRenderer but panics on a bad
// template.
func MustTemplateRenderer(text string) *TemplateRenderer {
	r, err := NewTemplateRenderer(text)
	if err != nil {
		panic(err)
	}
	return r
}

// Render executes the template for msg.
func (r *TemplateRenderer) Render(msg Message) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}
