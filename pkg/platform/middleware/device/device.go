// Package device describes the client behind a request for audit trails.
package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/mssola/useragent"

	"landdocs/pkg/requestcontext"
)

const unknownDevice = "Unknown Device"

// ParseUserAgent returns a short display name such as "Chrome on Intel Mac OS X 10_15_7".
func ParseUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return unknownDevice
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		name, _ := parsed.Browser()
		return strings.TrimSpace(fmt.Sprintf("bot %s", name))
	}
	browser, _ := parsed.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := parsed.OS()
	if os == "" {
		os = parsed.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(fmt.Sprintf("%s on %s", browser, os))
}

// ClientFields returns the client attributes recorded on audit events. Keys
// with no value are omitted.
func ClientFields(ctx context.Context) map[string]string {
	fields := make(map[string]string, 3)
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		fields["client_ip"] = ip
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		fields["device"] = ParseUserAgent(ua)
		if useragent.New(ua).Mobile() {
			fields["mobile"] = "true"
		}
	}
	return fields
}
