package common

// AppError carries the HTTP status and machine-readable code the response
// layer renders for a failure. Err holds the cause so errors.Is and
// errors.As still see package sentinels through the handler boundary.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
