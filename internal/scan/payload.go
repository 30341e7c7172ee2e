// Package scan resolves decoded QR payloads into fetch targets.
package scan

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"wiimwatch/internal/models"
)

// URLScheme is the scheme printed on WIIM labels.
const URLScheme = "wiim"

// ErrInvalidPayload is returned for payloads that name no process or tag.
var ErrInvalidPayload = errors.New("invalid qr payload")

// Parse resolves a payload such as "process:42", "tag/TT-01" or "wiim://process/42".
func Parse(payload string) (models.Target, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return models.Target{}, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}

	if strings.HasPrefix(strings.ToLower(payload), URLScheme+"://") {
		return parseURL(payload)
	}

	idx := strings.IndexAny(payload, ":/,")
	if idx < 0 {
		return models.Target{}, fmt.Errorf("%w: %q has no kind separator", ErrInvalidPayload, payload)
	}
	return build(payload[:idx], payload[idx+1:])
}

func parseURL(payload string) (models.Target, error) {
	u, err := url.Parse(payload)
	if err != nil {
		return models.Target{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	// wiim://process/42 puts the kind in the host part.
	id, err := url.PathUnescape(strings.Trim(u.EscapedPath(), "/"))
	if err != nil {
		return models.Target{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return build(u.Host, id)
}

func build(kind, id string) (models.Target, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Target{}, fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}

	switch models.Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case models.KindProcess:
		return models.Target{Kind: models.KindProcess, ID: id}, nil
	case models.KindTag:
		return models.Target{Kind: models.KindTag, ID: id}, nil
	default:
		return models.Target{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, kind)
	}
}
