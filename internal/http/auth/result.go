package auth

// Result is the envelope every endpoint answers with.
type Result[T any] struct {
	IsSuccess bool     `json:"isSuccess"`
	Value     *T       `json:"value,omitempty"`
	Errors    []string `json:"errors"`
}

// InternalError is the message sent for any failure the client cannot act on.
const InternalError = "An internal server error occurred"

func success[T any](v *T) Result[T] {
	return Result[T]{IsSuccess: true, Value: v, Errors: []string{}}
}

func Failure(errs ...string) Result[struct{}] {
	return Result[struct{}]{IsSuccess: false, Errors: errs}
}
