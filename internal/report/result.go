package report

import "strconv"

// NoStatus marks a failure for which no HTTP status code was obtained.
const NoStatus = 0

// Result is the outcome of one fetch attempt: either an elapsed time or a
// failure optionally carrying the server's status code.
type Result struct {
	ok      bool
	elapsed int64
	status  int
}

// Success records an attempt that completed in elapsedMs milliseconds.
func Success(elapsedMs int64) Result {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	return Result{ok: true, elapsed: elapsedMs}
}

// Failure records a failed attempt. Pass NoStatus when no status code is known.
func Failure(status int) Result {
	if status < 0 {
		status = NoStatus
	}
	return Result{status: status}
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool {
	return r.ok
}

// Elapsed returns the measured milliseconds of a successful attempt.
func (r Result) Elapsed() int64 {
	return r.elapsed
}

// Status returns the HTTP status code of a failed attempt, or NoStatus.
func (r Result) Status() int {
	return r.status
}

// Value collapses the result to the wire encoding: elapsed milliseconds on
// success, -status on failure, -1 when no status is known.
func (r Result) Value() int64 {
	if r.ok {
		return r.elapsed
	}
	if r.status == NoStatus {
		return -1
	}
	return -int64(r.status)
}

func (r Result) String() string {
	if r.ok {
		return strconv.FormatInt(r.elapsed, 10) + "ms"
	}
	if r.status == NoStatus {
		return "failed"
	}
	return "failed(" + strconv.Itoa(r.status) + ")"
}
