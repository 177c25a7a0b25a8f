package datastore

import (
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/nongbuhae/cropdoc/internal/logger"
)

// GetLogger returns the datastore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

func loggerString(key, value string) logger.Field {
	return logger.String(key, value)
}

func newGormLogger(slowThreshold time.Duration) gormlogger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger(), slowThreshold)
}
