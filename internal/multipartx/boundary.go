// Package multipartx implements the two pure parsing helpers the receive
// state machine needs from a multipart/form-data request: extracting the
// boundary from Content-Type, and parsing one Content-Disposition header
// line of a part.
package multipartx

import (
	"fmt"
	"strings"
)

// ExtractBoundary returns the boundary parameter of a
// "multipart/form-data; boundary=<v>" Content-Type value. The returned
// boundary is stored verbatim, without the leading "--"; callers test lines
// against it with a substring match (see containsBoundary in package recv).
func ExtractBoundary(contentType string) (string, error) {
	parts := strings.Split(contentType, ";")
	if len(parts) == 0 {
		return "", fmt.Errorf("multipartx: empty content-type")
	}

	if !strings.EqualFold(strings.TrimSpace(parts[0]), "multipart/form-data") {
		return "", fmt.Errorf("multipartx: not multipart/form-data: %q", contentType)
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if eq := strings.IndexByte(p, '='); eq >= 0 && strings.EqualFold(strings.TrimSpace(p[:eq]), "boundary") {
			return p[eq+1:], nil
		}
	}

	return "", fmt.Errorf("multipartx: no boundary parameter in %q", contentType)
}

// PartHeaders accumulates the fields a part's header block can set on the
// receiving state machine. RecvFSM embeds / populates this via
// ParsePartHeader.
type PartHeaders struct {
	// InputName is the name= parameter of the Content-Disposition header.
	InputName string
	// FileName is the filename= parameter, set only when InputName == "file".
	FileName string
}

// ParsePartHeader parses one MIME header line of a part ("Name: params").
// Only Content-Disposition is meaningful; every other header name is
// ignored (and reported as not handled via the handled return value so
// callers can distinguish "ignored" from "parsed").
//
// On a Content-Disposition line, it requires the first ;-separated param to
// case-insensitively equal "form-data" and a name="..." param to be present,
// and populates dst.InputName. If the name is "file", a filename="..." param
// is additionally required and populates dst.FileName.
func ParsePartHeader(line string, dst *PartHeaders) (handled bool, err error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return false, fmt.Errorf("multipartx: malformed header line %q", line)
	}

	name := strings.TrimSpace(line[:colon])
	if !strings.EqualFold(name, "Content-Disposition") {
		return false, nil
	}

	params := strings.Split(line[colon+1:], ";")
	if len(params) == 0 {
		return false, fmt.Errorf("multipartx: empty Content-Disposition")
	}
	if !strings.EqualFold(strings.TrimSpace(params[0]), "form-data") {
		return false, fmt.Errorf("multipartx: Content-Disposition is not form-data: %q", line)
	}

	inputName, ok := findQuotedParam(params[1:], "name")
	if !ok {
		return false, fmt.Errorf("multipartx: missing name= parameter: %q", line)
	}
	dst.InputName = inputName

	if inputName == "file" {
		fileName, ok := findQuotedParam(params[1:], "filename")
		if !ok {
			return false, fmt.Errorf("multipartx: missing filename= parameter for file part: %q", line)
		}
		dst.FileName = fileName
	}

	return true, nil
}

// findQuotedParam finds `key="value"` among ;-separated, trimmed params and
// returns the unquoted value.
func findQuotedParam(params []string, key string) (string, bool) {
	for _, p := range params {
		p = strings.TrimSpace(p)
		eq := strings.IndexByte(p, '=')
		if eq < 0 || !strings.EqualFold(strings.TrimSpace(p[:eq]), key) {
			continue
		}
		return unquote(p[eq+1:])
	}
	return "", false
}

// unquote finds the first and last '"' in s and returns what's between them.
// It fails if the two quotes coincide (a single quote, or no quotes at
// all); an empty quoted value ("") succeeds with "".
func unquote(s string) (string, bool) {
	first := strings.IndexByte(s, '"')
	if first < 0 {
		return "", false
	}
	last := strings.LastIndexByte(s, '"')
	if last == first {
		return "", false
	}
	return s[first+1 : last], true
}
