// Package inbound turns raw webhook requests into canonical events.
package inbound

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// maxBodyBytes bounds how much of an inbound body is read.
const maxBodyBytes = 1 << 20

// Payload is a normalized inbound body. Form values are a string when the
// field was sent once and a []string, in arrival order, when it was repeated.
// JSON bodies keep their decoded shape with numbers as json.Number.
type Payload map[string]any

// Normalize reads the request body and produces a Payload. It never fails;
// an unreadable or unparseable body yields an empty Payload.
func Normalize(r *http.Request) Payload {
	if r == nil || r.Body == nil {
		return Payload{}
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return Payload{}
	}
	return NormalizeBody(r.Header.Get("Content-Type"), body)
}

// NormalizeBody normalizes an already read body.
func NormalizeBody(contentType string, body []byte) Payload {
	if p := decodeJSON(body); len(p) > 0 {
		return p
	}

	mediaType, params, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "multipart/form-data":
		return decodeMultipart(body, params["boundary"])
	case "application/x-www-form-urlencoded", "":
		return decodeForm(body)
	default:
		return Payload{}
	}
}

func decodeJSON(body []byte) Payload {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil
	}
	return Payload(obj)
}

func decodeForm(body []byte) Payload {
	values, err := url.ParseQuery(string(body))
	if err != nil && len(values) == 0 {
		return Payload{}
	}
	return flatten(values)
}

func decodeMultipart(body []byte, boundary string) Payload {
	if boundary == "" {
		return Payload{}
	}
	req := &http.Request{
		Method: http.MethodPost,
		URL:    &url.URL{},
		Header: http.Header{"Content-Type": {"multipart/form-data; boundary=" + boundary}},
		Body:   io.NopCloser(bytes.NewReader(body)),
	}
	if err := req.ParseMultipartForm(maxBodyBytes); err != nil {
		return Payload{}
	}
	return flatten(req.MultipartForm.Value)
}

// flatten collapses single-valued fields to scalars and keeps repeated
// fields as ordered sequences.
func flatten(values map[string][]string) Payload {
	out := make(Payload, len(values))
	for key, vals := range values {
		switch len(vals) {
		case 0:
			out[key] = ""
		case 1:
			out[key] = vals[0]
		default:
			seq := make([]string, len(vals))
			copy(seq, vals)
			out[key] = seq
		}
	}
	return out
}

// EventName returns the event field, matched case-insensitively, trimmed and
// upper-cased.
func (p Payload) EventName() string {
	for _, key := range []string{"event", "EVENT"} {
		if s := stringValue(p[key]); s != "" {
			return strings.ToUpper(strings.TrimSpace(s))
		}
	}
	for key, v := range p {
		if strings.EqualFold(key, "event") {
			if s := stringValue(v); s != "" {
				return strings.ToUpper(strings.TrimSpace(s))
			}
		}
	}
	return ""
}

// stringValue renders a payload value as a string. Sequences yield their
// first non-empty element.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	case []string:
		for _, s := range val {
			if s != "" {
				return s
			}
		}
	case []any:
		for _, item := range val {
			if s := stringValue(item); s != "" {
				return s
			}
		}
	}
	return ""
}
