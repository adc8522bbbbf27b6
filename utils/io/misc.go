package io

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// GetCallerFileContext returns "file:line" of the caller, level frames up.
func GetCallerFileContext(level int) (fileContext string) {
	_, file, line, _ := runtime.Caller(1 + level)
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
