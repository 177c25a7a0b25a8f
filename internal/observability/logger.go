package observability

import (
	"fmt"

	"github.com/nongbuhae/cropdoc/internal/logger"
)

var log = logger.Global().Module("metrics")

// promErrorLog adapts the module logger to promhttp.Logger.
type promErrorLog struct {
	log logger.Logger
}

func (l promErrorLog) Println(v ...any) {
	l.log.Error("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
