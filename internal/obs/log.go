// Package obs carries the service's operational surface: the structured
// log sink, the Prometheus metric set and build information.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	sinkOnce sync.Once
	sink     *log.Logger
)

// Logger returns the process-wide line logger. The HTTP access log and the
// audit trail both write through it, one JSON object per line on stdout.
func Logger() *log.Logger {
	sinkOnce.Do(func() {
		sink = log.New(os.Stdout, "", 0)
	})
	return sink
}

// Emit marshals the entry and writes it as a single JSON log line. Entries
// carry a "type" field naming their stream ("http", "audit") so downstream
// collectors can split them.
func Emit(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"type":"log_error","error":"entry marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
