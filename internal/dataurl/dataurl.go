// Package dataurl reads and writes base64 data URLs of the form
// data:<mime>;base64,<payload>.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	scheme       = "data:"
	base64Param  = "base64"
	DefaultMIME  = "application/octet-stream"
	headerSuffix = ";base64,"
)

var ErrMalformed = errors.New("malformed data URL")

// File is a decoded data URL payload together with its declared media type.
type File struct {
	MIMEType string
	Data     []byte
}

func New(mimeType string, data []byte) File {
	return File{MIMEType: mimeType, Data: data}
}

// Size is the decoded payload length in bytes.
func (f File) Size() int {
	return len(f.Data)
}

// String renders the canonical data URL.
func (f File) String() string {
	mimeType := strings.TrimSpace(f.MIMEType)
	if mimeType == "" {
		mimeType = DefaultMIME
	}

	var b strings.Builder
	b.Grow(len(scheme) + len(mimeType) + len(headerSuffix) + base64.StdEncoding.EncodedLen(len(f.Data)))
	b.WriteString(scheme)
	b.WriteString(mimeType)
	b.WriteString(headerSuffix)
	b.WriteString(base64.StdEncoding.EncodeToString(f.Data))
	return b.String()
}

// Parse decodes a base64 data URL. Media type parameters other than the
// base64 marker are accepted and dropped.
func Parse(s string) (File, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(scheme) || !strings.EqualFold(s[:len(scheme)], scheme) {
		return File{}, fmt.Errorf("%w: missing %q prefix", ErrMalformed, scheme)
	}

	header, payload, ok := strings.Cut(s[len(scheme):], ",")
	if !ok {
		return File{}, fmt.Errorf("%w: missing payload separator", ErrMalformed)
	}

	params := strings.Split(header, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	encoded := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), base64Param) {
			encoded = true
		}
	}
	if !encoded {
		return File{}, fmt.Errorf("%w: only base64 payloads are supported", ErrMalformed)
	}
	if mimeType == "" {
		mimeType = DefaultMIME
	}

	data, err := decodePayload(payload)
	if err != nil {
		return File{}, err
	}
	return File{MIMEType: mimeType, Data: data}, nil
}

func decodePayload(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrMalformed, err)
	}
	return data, nil
}
