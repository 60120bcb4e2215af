package constants

import "github.com/go-playground/validator/v10"

type contextKey string

const (
	TxKey     contextKey = "tx"
	PoolKey   contextKey = "pool"
	LoggerKey contextKey = "logger"
	RunIDKey  contextKey = "run_id"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
