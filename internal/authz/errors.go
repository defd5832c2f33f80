package authz

// AppError is the wire-facing error carried through Fiber's error handler.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// UnauthorizedError covers an absent, malformed, or unverifiable credential.
func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

// ForbiddenError is the terminal outcome when no grant path matched.
func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

// NotFoundError reports a resolver miss, distinct from a permission denial.
func NotFoundError(msg string) *AppError {
	return &AppError{Code: "NOT_FOUND", Status: 404, Message: msg}
}

// ConflictError reports a registration that collides with an existing key.
func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

func InternalError(msg string) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Status: 500, Message: msg}
}
