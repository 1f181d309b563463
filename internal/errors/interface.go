package errors

// ErrorCode is a stable, machine-readable error identifier. Codes are logged
// as the "code" field and compared with HasCode.
type ErrorCode string

// Error is a coded error. Data carries structured context for logs.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	Data() any
	Unwrap() error
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
