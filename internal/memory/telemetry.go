package memory

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// Telemetry receives structured, sanitized event records. Implementations
// must never raise back into the caller; the engine treats telemetry as
// strictly lower priority than the operation it observes.
type Telemetry interface {
	Event(name string, fields map[string]any)
}

type logTelemetry struct{}

// NewLogTelemetry returns a Telemetry that writes key=value lines to
// the standard logger.
func NewLogTelemetry() Telemetry {
	return logTelemetry{}
}

func (logTelemetry) Event(name string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	log.Printf("telemetry %s%s", name, b.String())
}
