package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns "<prefix>_<uuid without dashes>".
func GenerateID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
