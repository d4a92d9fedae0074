package processor

import (
	"fmt"
	"regexp"
)

const (
	contentTypeNotes     = "text/plain; charset=utf-8"
	contentTypeNarration = "audio/mpeg"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeName replaces every non-alphanumeric character with an underscore.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

type artifactKeys struct {
	notes     string
	narration string
}

func newArtifactKeys(id, displayName string) artifactKeys {
	name := SanitizeName(displayName)
	return artifactKeys{
		notes:     fmt.Sprintf("explanationFile/%s_%s.txt", id, name),
		narration: fmt.Sprintf("audioExplanationFile/%s_%s.mp3", id, name),
	}
}
