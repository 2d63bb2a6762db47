package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dshills/stormdbg/internal/debug/location"
)

// parseLocation parses "file:line". Relative files are made absolute.
func parseLocation(s string) (location.Editor, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return location.Editor{}, fmt.Errorf("invalid location %q: want file:line", s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil || line <= 0 {
		return location.Editor{}, fmt.Errorf("invalid line in %q", s)
	}
	path, err := filepath.Abs(s[:i])
	if err != nil {
		return location.Editor{}, fmt.Errorf("invalid path in %q: %w", s, err)
	}
	return location.Editor{Path: filepath.ToSlash(path), Line: line}, nil
}

// parseParams parses key=value pairs over a copy of base.
func parseParams(base map[string]string, pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		params[k] = v
	}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q: want key=value", pair)
		}
		params[k] = strings.TrimSpace(v)
	}
	return params, nil
}

// breakpointFiles returns the file part of each "file:line" argument.
func breakpointFiles(specs []string) []string {
	files := make([]string, 0, len(specs))
	for _, s := range specs {
		if i := strings.LastIndexByte(s, ':'); i > 0 {
			files = append(files, s[:i])
		}
	}
	return files
}
