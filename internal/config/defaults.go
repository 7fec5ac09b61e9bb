package config

import (
	"os"
	"path/filepath"
)

// PlatformConfigDir returns the directory holding the default config file.
//
// SIGREPLAY_CONFIG_DIR overrides it. Otherwise:
//   - macOS:   ~/Library/Application Support/sigreplay/
//   - Linux:   $XDG_CONFIG_HOME/sigreplay/ or ~/.config/sigreplay/
//   - Windows: %AppData%\sigreplay\
//
// Falls back to ~/.sigreplay when no user config dir is known.
func PlatformConfigDir() string {
	if dir := os.Getenv("SIGREPLAY_CONFIG_DIR"); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "sigreplay")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sigreplay")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches the working directory, then the platform config
// directory, for config.<format>. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
