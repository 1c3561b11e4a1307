package locator

import "github.com/xraph/locator/logger"

// Re-export logger interfaces
type (
	Logger        = logger.Logger
	Field         = logger.Field
	LoggingConfig = logger.LoggingConfig
)

// Re-export logger constructors
var (
	NewLogger            = logger.NewLogger
	NewDevelopmentLogger = logger.NewDevelopmentLogger
	NewLoggerFromZap     = logger.NewLoggerFromZap
	NewNoopLogger        = logger.NewNoopLogger
)
