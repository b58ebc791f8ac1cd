package logging

import (
	"fmt"
	"log"
	"os"
	"time"
)

const (
	levelError = "ERROR"
	levelFatal = "FATAL"
)

// writeLog formats the message with optional fields and routes it:
// DEBUG/INFO/WARN go to stdout, ERROR/FATAL go to stderr.
func (l *Logger) writeLog(level, msg string, fields map[string]interface{}) {
	logMsg := fmt.Sprintf("[%s] [%s] %s: %s", GetTimestamp(), level, l.name, msg)

	if len(fields) > 0 {
		logMsg += " |"
		for k, v := range fields {
			logMsg += fmt.Sprintf(" %s=%v", k, v)
		}
	}

	if level == levelError || level == levelFatal {
		fmt.Fprintf(os.Stderr, "%s\n", logMsg)
	} else {
		log.Println(logMsg)
	}
}

// logf handles formatted messages, merging context fields and persistent fields.
func (l *Logger) logf(level, msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf(msg, args...)
	l.writeLog(level, formattedMsg, l.mergedFields(nil))
}

// logFields handles messages carrying per-call structured fields.
func (l *Logger) logFields(level, msg string, fields []LogField) {
	l.writeLog(level, msg, l.mergedFields(fields))
}

// mergedFields combines context fields, persistent fields and per-call fields
// in increasing priority order.
func (l *Logger) mergedFields(callFields []LogField) map[string]interface{} {
	contextFields := extractContextFields(l.ctx)
	if contextFields == nil && len(l.fields) == 0 && len(callFields) == 0 {
		return nil
	}

	merged := make(map[string]interface{})
	for k, v := range contextFields {
		merged[k] = v
	}
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range callFields {
		merged[f.Key] = f.Value
	}
	return merged
}

// GetTimestamp returns an RFC3339 timestamp.
// Can be overridden via the LOG_TIMESTAMP env var for deterministic tests.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
