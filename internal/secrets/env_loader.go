package secrets

import (
	"fmt"
	"os"
	"strings"
)

// EnvLoader returns a Loader reading the named environment variables. Each
// variable may instead be supplied through <NAME>_FILE naming a file whose
// contents hold the value, the usual shape of a mounted container secret;
// the direct variable wins when both are set. Unset variables are omitted
// from the result, but a named secret file that cannot be read is an error:
// a half-configured secret must fail the load, not silently vanish.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				vals[key] = v
				continue
			}
			path := os.Getenv(key + "_FILE")
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read secret file for %s: %w", key, err)
			}
			if v := strings.TrimRight(string(data), "\r\n"); v != "" {
				vals[key] = v
			}
		}
		return vals, nil
	}
}
