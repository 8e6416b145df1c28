package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// PrometheusHandler exposes m in Prometheus' text exposition format as a
// single counter family named <namespace>_events_total with an `event` label.
func PrometheusHandler(namespace string, m *Metrics) http.Handler {
	name := namespace + "_events_total"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintf(w, "# HELP %s Internal event counters.\n", name)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", name)
		for _, k := range keys {
			escaped := strings.NewReplacer("\\", "\\\\", "\"", "\\\"").Replace(k)
			_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", name, escaped, snap[k])
		}
	})
}
