package stt

import (
	"regexp"
	"strings"
)

// nonSpeech matches provider-injected audio-quality markers.
var nonSpeech = regexp.MustCompile(`(?i)\[\s*(blank_audio|music|noise|silence|inaudible|no speech)\s*\]|<\s*noise\s*>|\(\s*(music|noise|silence|inaudible)\s*\)`)

var spaces = regexp.MustCompile(`\s+`)

// CleanText strips non-speech markers and collapses whitespace. The result is
// empty when nothing speech-like remains; callers must not emit events for it.
func CleanText(text string) string {
	text = nonSpeech.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

// IsBlank reports whether text is empty or whitespace only.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
