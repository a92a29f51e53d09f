// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FallbackAPIURL is used when neither a stored override nor a build-time
// value is present.
const FallbackAPIURL = "https://2661-103-174-80-40.ngrok-free.app/api/v1"

// BuildAPIURL is set at build time:
//
//	go build -ldflags "-X github.com/pocketpaw/pawtui/internal/config.BuildAPIURL=https://host/api/v1"
var BuildAPIURL = ""

// URLSource names the layer a resolved base URL came from.
type URLSource string

const (
	SourceFlag     URLSource = "command line"
	SourceOverride URLSource = "local override"
	SourceBuild    URLSource = "build-time"
	SourceConfig   URLSource = "config"
	SourceFallback URLSource = "fallback"
)

// ResolveBaseURL picks the API base URL. Priority: the locally stored
// override, the build-time value (ldflags, then api.base_url which also
// carries PAWTUI_API_URL), then FallbackAPIURL. Trailing slashes are removed
// so endpoint paths can be appended directly.
func (c *Config) ResolveBaseURL(override string) (string, URLSource) {
	if u := strings.TrimSpace(override); u != "" {
		return trimBase(u), SourceOverride
	}
	if u := strings.TrimSpace(BuildAPIURL); u != "" {
		return trimBase(u), SourceBuild
	}
	if u := strings.TrimSpace(c.API.BaseURL); u != "" {
		return trimBase(u), SourceConfig
	}
	return FallbackAPIURL, SourceFallback
}

func trimBase(u string) string {
	return strings.TrimRight(u, "/")
}

// ValidateBaseURL checks that u is an absolute http(s) URL.
func ValidateBaseURL(u string) error {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL %q has no host", u)
	}
	return nil
}
