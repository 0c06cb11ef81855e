package referral

import (
	"net/url"
	"strings"
)

const codePrefix = "ref_"

// ParseCode extracts the referrer id from a deep-link start payload. Both
// "<id>" and "ref_<id>" are accepted.
func ParseCode(payload string) string {
	code := strings.TrimSpace(payload)
	if len(code) >= len(codePrefix) && strings.EqualFold(code[:len(codePrefix)], codePrefix) {
		code = code[len(codePrefix):]
	}
	if strings.ContainsAny(code, " \t\r\n/") {
		return ""
	}
	return code
}

// DeepLink returns the bot start link that attributes new users to userID.
func DeepLink(botUsername, userID string) string {
	name := strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	if name == "" || userID == "" {
		return ""
	}
	return "https://t.me/" + name + "?start=" + codePrefix + url.QueryEscape(userID)
}

// OfferLink substitutes {user} in the provider offer URL template.
func OfferLink(template, userID string) string {
	template = strings.TrimSpace(template)
	if template == "" || userID == "" {
		return ""
	}
	return strings.ReplaceAll(template, "{user}", url.QueryEscape(userID))
}
