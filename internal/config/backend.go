package config

// ConfigBackend stores non-secret config values as strings. Values are
// parsed against the key table when loaded, so backends stay untyped.
// macOS keeps them in the user defaults database, other platforms in a
// JSON file under XDG_CONFIG_HOME.
type ConfigBackend interface {
	Get(key string) (val string, ok bool, err error)
	Set(key, val string) error
}
