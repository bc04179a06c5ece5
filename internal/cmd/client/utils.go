package client

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// endpointFromEnv returns the collector endpoint from FLARE_ENDPOINT or a default.
func endpointFromEnv() string {
	if v := os.Getenv("FLARE_ENDPOINT"); v != "" {
		return v
	}
	return "http://127.0.0.1:8787"
}

// sdkKeyFromEnv returns the client key from FLARE_SDK_KEY, empty if unset.
func sdkKeyFromEnv() string {
	return os.Getenv("FLARE_SDK_KEY")
}

// parseMeta converts repeated key=value flags into event metadata.
func parseMeta(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(map[string]interface{}, len(pairs))
	for _, kv := range pairs {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --meta, expected key=value: %s", kv)
		}
		md[strings.TrimSpace(parts[0])] = parts[1]
	}
	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}

// parseValue interprets a --value flag: JSON when it parses, raw string
// otherwise. "3" becomes a number, "true" a bool, "hi" a string.
func parseValue(raw string) interface{} {
	if raw == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
