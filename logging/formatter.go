package logging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TimestampFormat is UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

var reservedKeys = map[string]struct{}{
	"ts":    {},
	"level": {},
	"msg":   {},
}

// Formatter renders entries as single line JSON objects. It never returns an
// error: records that cannot be encoded are replaced by a log_format_error
// warning.
type Formatter struct {
	// Now is used for the fallback record timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = f.fallback(entry, fmt.Sprint(r))
			err = nil
		}
	}()

	record := make(map[string]any, len(entry.Data)+5)
	for key, value := range entry.Data {
		if _, reserved := reservedKeys[key]; reserved {
			key = "fields." + key
		}
		record[key] = coerce(Redact(key, value))
	}

	record["ts"] = entry.Time.UTC().Format(TimestampFormat)
	record["level"] = strings.ToUpper(entry.Level.String())
	record["msg"] = entry.Message

	if _, ok := record["logger"]; !ok {
		record["logger"] = "root"
	}

	if _, ok := record["request_id"]; !ok {
		if id := RequestIDFromContext(entry.Context); id != "" {
			record["request_id"] = id
		}
	}

	b, merr := json.Marshal(record)
	if merr != nil {
		return f.fallback(entry, merr.Error()), nil
	}

	return append(b, '\n'), nil
}

func (f *Formatter) fallback(entry *logrus.Entry, cause string) []byte {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	record := map[string]string{
		"ts":     now().UTC().Format(TimestampFormat),
		"level":  "WARNING",
		"logger": "logging",
		"msg":    FormatErrorMessage,
		"error":  cause,
	}

	if entry != nil {
		record["original_msg"] = entry.Message
		if id := RequestIDFromContext(entry.Context); id != "" {
			record["request_id"] = id
		}
	}

	b, err := json.Marshal(record)
	if err != nil {
		return []byte(`{"level":"WARNING","logger":"logging","msg":"` + FormatErrorMessage + `"}` + "\n")
	}
	return append(b, '\n')
}

// coerce returns a value that json.Marshal accepts.
func coerce(value any) any {
	switch v := value.(type) {
	case nil, string, bool, int, int64:
		return v
	case error:
		return v.Error()
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return v.String()
	case fmt.Stringer:
		return stringify(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, nested := range v {
			out[key] = coerce(nested)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i] = coerce(nested)
		}
		return out
	}

	if _, err := json.Marshal(value); err != nil {
		return stringify(value)
	}
	return value
}

func stringify(value any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("%T", value)
		}
	}()
	return fmt.Sprint(value)
}
