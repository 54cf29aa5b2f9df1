package utils

import (
	"net/url"
	"regexp"
)

var fileNamePattern = regexp.MustCompile(`[^\p{L}0-9]+`)

// SanitizeFileName replaces everything except letters and digits with a single underscore,
// so manga and chapter titles become safe directory names.
func SanitizeFileName(name string) string {
	return fileNamePattern.ReplaceAllString(name, "_")
}

// IsValidLink reports whether text is an absolute http(s) URL with a plausible host.
func IsValidLink(text string) bool {
	parsedURL, err := url.ParseRequestURI(text)
	if err != nil {
		return false
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}

	hostPattern := regexp.MustCompile(`^[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return hostPattern.MatchString(parsedURL.Host)
}
