// Package config loads the daemon configuration file (volumectl.yaml).
//
// Top-level types:
//   - Config{Settings, Content, HTTP, Log}: full tree parsed from YAML
//   - SettingsConfig: volume file location, watch toggle, settle delay, debounce
//   - ContentConfig: assets root scanned for known identifiers, extra identifiers
//   - HTTPConfig: listen address, websocket broadcast interval, auth
//   - AuthConfig: mode (apikey|none), header, key_env; Key() resolves the env var
//
// Load(path) reads the YAML file, applies defaults, then validates. Default()
// returns the configuration used when no file is given.
package config
