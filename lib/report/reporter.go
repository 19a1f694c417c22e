package report

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Default reporter
// --------------------------------------------------------------------------

// logReporter writes every reported error to the module logger and counts it.
type logReporter struct {
	name    string
	log     logger.ILogger
	counter *metrics.Counter
}

// NewLogReporter creates an IErrorReporter that logs errors under the given
// source name and increments the upsync_reported_errors_total metric.
//
// Thread-safety: The returned reporter is safe for concurrent use.
func NewLogReporter(name string) IErrorReporter {
	return &logReporter{
		name: name,
		log:  logger.GetLogger("report"),
		counter: metrics.GetOrCreateCounter(
			fmt.Sprintf(`upsync_reported_errors_total{source=%q}`, name),
		),
	}
}

func (r *logReporter) ReportError(err error) {
	r.counter.Inc()
	r.log.Errorf("%s: %v", r.name, err)
}

// Default is the reporter used by components that were not configured with an
// explicit one.
var Default = NewLogReporter("default")
