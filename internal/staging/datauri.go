package staging

import (
	"encoding/base64"
	"net/url"
	"strings"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
)

// ErrNotDataURI is returned for payloads outside the embedded-data form.
var ErrNotDataURI = derrors.ValidationError("attachment payload is not a data URI").Build()

// DecodeDataURI splits a data URI into its media type and decoded bytes.
// A missing media type defaults to text/plain as the data URI scheme defines.
func DecodeDataURI(raw string) (string, []byte, error) {
	if !strings.HasPrefix(raw, "data:") {
		return "", nil, ErrNotDataURI
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return "", nil, ErrNotDataURI.WithContext("reason", "missing comma")
	}

	isBase64 := false
	if h, found := strings.CutSuffix(header, ";base64"); found {
		header = h
		isBase64 = true
	}
	mediaType := header
	if mediaType == "" || strings.HasPrefix(mediaType, ";") {
		mediaType = "text/plain" + mediaType
	}

	if isBase64 {
		clean := strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		data, err := base64.StdEncoding.DecodeString(clean)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(clean, "="))
		}
		if err != nil {
			return "", nil, ErrNotDataURI.WithContext("reason", "invalid base64").WithCause(err)
		}
		return mediaType, data, nil
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, ErrNotDataURI.WithContext("reason", "invalid percent-encoding").WithCause(err)
	}
	return mediaType, []byte(text), nil
}
