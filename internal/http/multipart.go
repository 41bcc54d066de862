package http

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// FormPart is one field of a multipart/form-data body. File parts have a
// Filename and read their content from Reader; value parts use Value.
type FormPart struct {
	Name        string
	Value       []byte
	Reader      io.Reader
	Filename    string
	ContentType string
}

// MultipartBuilder assembles multipart/form-data bodies that can be rebuilt
// for every attempt of a request.
//
// Field names are written verbatim apart from quote escaping: the API expects
// array-style names such as files[0] with literal brackets.
type MultipartBuilder struct {
	parts []*FormPart
}

// NewMultipartBuilder returns an empty builder.
func NewMultipartBuilder() *MultipartBuilder {
	return &MultipartBuilder{}
}

// AddField appends a plain value field.
func (b *MultipartBuilder) AddField(name, value string) *MultipartBuilder {
	b.parts = append(b.parts, &FormPart{Name: name, Value: []byte(value)})
	return b
}

// AddFile appends a file field. Readers implementing io.Seeker are rewound
// on every Build; other readers are consumed once and buffered.
func (b *MultipartBuilder) AddFile(name, filename string, r io.Reader, contentType string) *MultipartBuilder {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b.parts = append(b.parts, &FormPart{Name: name, Reader: r, Filename: filename, ContentType: contentType})
	return b
}

// Len returns the number of parts.
func (b *MultipartBuilder) Len() int {
	return len(b.parts)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Build encodes the form and returns the body and its Content-Type header
// value.
func (b *MultipartBuilder) Build() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range b.parts {
		h := make(textproto.MIMEHeader)
		disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(p.Name))
		if p.Filename != "" {
			disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(p.Filename))
		}
		h.Set("Content-Disposition", disposition)
		if p.ContentType != "" {
			h.Set("Content-Type", p.ContentType)
		}

		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part %q: %w", p.Name, err)
		}
		content, err := p.content()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read part %q: %w", p.Name, err)
		}
		if _, err := pw.Write(content); err != nil {
			return nil, "", fmt.Errorf("failed to write part %q: %w", p.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// content returns the bytes of the part, rewinding or buffering its reader.
func (p *FormPart) content() ([]byte, error) {
	if p.Reader == nil {
		return p.Value, nil
	}
	if s, ok := p.Reader.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return io.ReadAll(p.Reader)
	}
	data, err := io.ReadAll(p.Reader)
	if err != nil {
		return nil, err
	}
	p.Value, p.Reader = data, nil
	return data, nil
}
