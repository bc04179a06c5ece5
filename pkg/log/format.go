package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

const defaultTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// TextFormatter renders entries as a single human-readable line:
//
//	2026-01-02T15:04:05.000Z INFO  [component] message key=value key=value
type TextFormatter struct {
	// TimestampFormat overrides the default RFC3339-with-millis format.
	TimestampFormat string
	// DisableTimestamp omits the timestamp column.
	DisableTimestamp bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var b bytes.Buffer

	if !f.DisableTimestamp {
		format := f.TimestampFormat
		if format == "" {
			format = defaultTimestampFormat
		}
		b.WriteString(entry.Timestamp.Format(format))
		b.WriteByte(' ')
	}

	fmt.Fprintf(&b, "%-5s ", entry.Level.String())

	if comp, ok := entry.Fields["component"].(string); ok && comp != "" {
		fmt.Fprintf(&b, "[%s] ", comp)
	}

	b.WriteString(entry.Message)

	for _, k := range sortedKeys(entry.Fields) {
		if k == "component" {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// JSONFormatter renders entries as one JSON object per line.
type JSONFormatter struct {
	// TimestampFormat overrides the default RFC3339-with-millis format.
	TimestampFormat string
	// PrettyPrint indents the output. Intended for debugging only.
	PrettyPrint bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	format := f.TimestampFormat
	if format == "" {
		format = defaultTimestampFormat
	}

	data := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			data[k] = err.Error()
			continue
		}
		data[k] = v
	}
	data["ts"] = entry.Timestamp.Format(format)
	data["level"] = entry.Level.String()
	data["msg"] = entry.Message
	if entry.Caller != "" {
		data["caller"] = entry.Caller
	}

	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	if f.PrettyPrint {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func sortedKeys(fields Fields) []string {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
