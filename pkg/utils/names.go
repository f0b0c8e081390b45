package utils

import (
	"errors"
	"strings"
)

// ValidateAssetName checks that name is a single path element that can be
// joined onto an asset directory without escaping it.
func ValidateAssetName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("asset name is required")
	}
	if trimmed != name {
		return errors.New("asset name must not have surrounding whitespace")
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return errors.New("asset name must not contain path separators or '..'")
	}
	return nil
}
