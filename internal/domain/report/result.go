package report

// Result is the outcome of one backend sub-query. Failures are carried as a
// message so one failing query never aborts assembly of the others.
type Result[T any] struct {
	Value T
	Err   string
}

// Ok wraps a successful payload.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps a failure message. An empty message still counts as a failure.
func Fail[T any](msg string) Result[T] {
	if msg == "" {
		msg = "unknown error"
	}
	return Result[T]{Err: msg}
}

func (r Result[T]) OK() bool { return r.Err == "" }
