package report

// IErrorReporter defines the interface for the error-reporting collaborator.
//
// ReportError is invoked once for every failure that escapes a user-supplied
// callback or a background loop iteration, except during confirmed shutdown.
// Implementations must be safe for concurrent use and must not block for a
// prolonged time, since they are called from scheduling loops.
type IErrorReporter interface {
	// ReportError reports a single error. The error is never nil.
	ReportError(err error)
}

// ReporterFunc adapts a plain function to the IErrorReporter interface.
type ReporterFunc func(err error)

func (f ReporterFunc) ReportError(err error) {
	f(err)
}
