package influxdb

import "encoding/json"

// formatAny renders values without a native line-protocol type as JSON.
func formatAny(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
