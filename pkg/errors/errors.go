package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf 返回错误的业务错误码，非AppError返回空字符串
func CodeOf(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ""
}

// HasCode 判断错误是否携带指定错误码
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

var (
	ErrConfigLoad         = "CONFIG_LOAD_ERROR"
	ErrDatabaseConnect    = "DATABASE_CONNECT_ERROR"
	ErrInvalidInput       = "INVALID_INPUT"
	ErrInvalidEligibility = "INVALID_ELIGIBILITY"
	ErrConfigUnavailable  = "CONFIG_UNAVAILABLE"
	ErrHierarchy          = "HIERARCHY_ERROR"
	ErrHierarchyCycle     = "HIERARCHY_CYCLE"
	ErrPersistence        = "PERSISTENCE_ERROR"
	ErrStatisticsUpdate   = "STATISTICS_UPDATE_ERROR"
)
