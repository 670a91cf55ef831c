// Package placeholder shields inline image markup from the translation model
// by swapping it for numbered markers (__IMAGE_TAG_0__, __IMAGE_TAG_1__, …)
// before a request and substituting the originals back afterwards. Covered
// forms are <img …> / <image …/> tags and bracketed markers such as
// [Illustration: map] or 【图片】.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reImageTag = regexp.MustCompile(`(?i)<img[^>]*>|\[(?:image|img|illustration)[^\[\]]*\]|【(?:图片|圖片|插图|插圖)[^【】]*】`)
	reMarker   = regexp.MustCompile(`__IMAGE_TAG_(\d+)__`)
)

// Protect replaces every image tag or bracketed image marker in text with a
// numbered marker, in order of appearance. It returns the rewritten text
// together with the captured originals for Restore.
func Protect(text string) (string, []string) {
	var captured []string
	out := reImageTag.ReplaceAllStringFunc(text, func(match string) string {
		marker := fmt.Sprintf("__IMAGE_TAG_%d__", len(captured))
		captured = append(captured, match)
		return marker
	})
	return out, captured
}

// Restore substitutes markers back with the originals captured by Protect.
// Markers whose index is out of range are left untouched.
func Restore(text string, captured []string) string {
	return reMarker.ReplaceAllStringFunc(text, func(match string) string {
		sub := reMarker.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(captured) {
			return match
		}
		return captured[idx]
	})
}

// Missing reports the marker indices created by Protect that no longer
// appear in text. A non-empty result means the model dropped markup and the
// response should not be trusted.
func Missing(text string, captured []string) []int {
	var missing []int
	for i := range captured {
		if !strings.Contains(text, fmt.Sprintf("__IMAGE_TAG_%d__", i)) {
			missing = append(missing, i)
		}
	}
	return missing
}
