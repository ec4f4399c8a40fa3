package realtime

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeClient renders a User-Agent as "Browser on OS" for session logs.
func DescribeClient(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if ua.Bot() {
		return strings.TrimSpace(browser + " (bot)")
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	platform := ua.OS()
	if platform == "" {
		platform = "Unknown OS"
	}
	return strings.TrimSpace(browser) + " on " + strings.TrimSpace(platform)
}
