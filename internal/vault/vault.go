// Package vault stores archived copies of published files.
package vault

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContentNotFound is returned by GetContent for unknown keys.
var ErrContentNotFound = errors.New("content not found")

// validateKey rejects keys that could escape the vault's namespace.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid content key %q", key)
	}
	return nil
}
