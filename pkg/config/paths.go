package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Environment variables consumed by path resolution, in documented
// precedence order. NESTOR_CONFIG_PATH bypasses the search entirely.
const (
	EnvConfigPath = "NESTOR_CONFIG_PATH"
	EnvStateDir   = "NESTOR_STATE_DIR"
	EnvProfile    = "NESTOR_PROFILE"
	EnvOAuthDir   = "NESTOR_OAUTH_DIR"
)

// Directory and filename candidates, newest first. The legacy names are
// kept readable so installs predating the rename keep working.
const (
	canonicalDirName  = ".nestor"
	legacyDirName     = ".nestorbot"
	canonicalFileName = "nestor.json"
	legacyFileName    = "nestorbot.json"
)

// RuntimePaths is the resolved filesystem layout for this process.
// Resolution is a pure function of the environment and filesystem
// existence: identical inputs always produce identical paths, so writes
// land on the same file earlier reads used even while legacy files linger.
type RuntimePaths struct {
	StateDir    string
	ConfigPath  string
	OAuthDir    string
	SessionsDir string
}

// ResolveRuntimePaths evaluates the path precedence rules once.
//
//  1. NESTOR_CONFIG_PATH, when set, is used verbatim and wins over
//     everything, whether or not the file exists yet.
//  2. Otherwise directory candidates are searched newest-first
//     (canonical before legacy, profile suffix applied), and within each
//     directory the canonical filename before the legacy one. The first
//     existing (directory, filename) pair wins.
//  3. When nothing exists the canonical directory and filename are
//     returned, to be created on first write.
func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvConfigPath))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	dirs := stateDirCandidates()
	stateDir := dirs[0]

	for _, dir := range dirs {
		for _, name := range []string{canonicalFileName, legacyFileName} {
			candidate := filepath.Join(dir, name)
			if fileExists(candidate) {
				return buildRuntimePaths(stateDir, candidate)
			}
		}
	}

	return buildRuntimePaths(stateDir, filepath.Join(stateDir, canonicalFileName))
}

// stateDirCandidates returns the directories to search, newest first.
// An explicit NESTOR_STATE_DIR replaces the candidate list verbatim;
// otherwise the canonical and legacy home directories are used, with the
// profile suffix applied to both.
func stateDirCandidates() []string {
	if override := expandHome(strings.TrimSpace(os.Getenv(EnvStateDir))); override != "" {
		return []string{override}
	}

	suffix := profileSuffix()
	return []string{
		filepath.Join(homeDir(), canonicalDirName+suffix),
		filepath.Join(homeDir(), legacyDirName+suffix),
	}
}

// profileSuffix returns "-{profile}" for a named profile. A profile
// literally named "default" (any case) is treated as no profile.
func profileSuffix() string {
	profile := strings.TrimSpace(os.Getenv(EnvProfile))
	if profile == "" || strings.EqualFold(profile, "default") {
		return ""
	}
	return "-" + profile
}

func buildRuntimePaths(stateDir, configPath string) RuntimePaths {
	oauthDir := expandHome(strings.TrimSpace(os.Getenv(EnvOAuthDir)))
	if oauthDir == "" {
		oauthDir = filepath.Join(stateDir, "credentials")
	}
	return RuntimePaths{
		StateDir:    stateDir,
		ConfigPath:  configPath,
		OAuthDir:    oauthDir,
		SessionsDir: filepath.Join(stateDir, "sessions"),
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), strings.TrimPrefix(path, "~"))
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
