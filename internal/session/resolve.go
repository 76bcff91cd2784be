package session

import "github.com/tmarcondes/pulse/internal/config"

// DefaultSessionName is used when neither a flag nor the global config
// names a session.
const DefaultSessionName = "main"

// Resolve picks the active session name: an explicit flag wins, then
// the global config's default_session, then DefaultSessionName. A
// missing or unreadable config.toml is not an error here.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
