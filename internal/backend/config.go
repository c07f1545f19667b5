package backend

import (
	"fmt"

	"tirelire/internal/config"
)

// LocalFromAppConfig maps the application config to the local store backend.
func LocalFromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := Type(appConfig.DataBackend)
	switch backendType {
	case MemoryBackend, SQLiteBackend:
	default:
		return Config{}, fmt.Errorf("invalid local backend type: %s", appConfig.DataBackend)
	}

	cfg := Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
	}
	return cfg, cfg.Validate()
}

// MirrorFromAppConfig maps the application config to the cloud mirror
// backend. ok is false when no mirror is configured.
func MirrorFromAppConfig(appConfig *config.Config) (cfg Config, ok bool, err error) {
	if appConfig == nil {
		return Config{}, false, fmt.Errorf("app config is nil")
	}
	if appConfig.MirrorBackend == "" || appConfig.MirrorBackend == "none" {
		return Config{}, false, nil
	}

	backendType := Type(appConfig.MirrorBackend)
	switch backendType {
	case FirestoreBackend, GitHubBackend:
	default:
		return Config{}, false, fmt.Errorf("invalid mirror backend type: %s", appConfig.MirrorBackend)
	}

	cfg = Config{Type: backendType}
	return cfg, true, cfg.Validate()
}

// Validate checks the per-backend settings. The firestore and github
// backends read their credentials from the environment at construction, so
// there is nothing to check here beyond the type.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("sqlite database path is required for sqlite backend")
	}
	return nil
}
