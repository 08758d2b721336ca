package exchange

import "errors"

// Every rejected request maps to one of these so the API layer can pick a
// status and message. Partial fills are not errors.
var (
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrSymbolExists        = errors.New("symbol already exists")
	ErrSymbolHalted        = errors.New("symbol halted")
	ErrSymbolSettled       = errors.New("symbol settled")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCancellable = errors.New("order not cancellable")
	ErrValidation          = errors.New("validation error")
	ErrLimitExceeded       = errors.New("limit exceeded")
	ErrForbidden           = errors.New("forbidden")
	ErrPersistence         = errors.New("persistence error")
)
