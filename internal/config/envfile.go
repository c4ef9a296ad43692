package config

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

var envFileNames = []string{".env.local", ".env"}

// loadEnvFiles applies .env.local and .env from the working directory and
// the executable's directory. Variables already present in the environment win.
func loadEnvFiles() {
	for _, dir := range envFileDirs() {
		for _, name := range envFileNames {
			if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
				applyEnvFile(data)
			}
		}
	}
}

func envFileDirs() []string {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		if dir := filepath.Dir(exe); dir != "" && (len(dirs) == 0 || dir != dirs[0]) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// applyEnvFile sets KEY=VALUE pairs. Blank lines, comments and an optional
// "export " prefix are accepted; surrounding quotes are stripped.
func applyEnvFile(data []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, set := os.LookupEnv(key); !set {
			_ = os.Setenv(key, value)
		}
	}
}
