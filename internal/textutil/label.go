package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label turns an identifier such as "file_analysis" into "File Analysis".
func Label(value string) string {
	value = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(value))
	if value == "" {
		return ""
	}
	return cases.Title(language.Und).String(value)
}
