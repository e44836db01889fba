package daemon

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger writes access logs through logrus. Successful requests are
// logged at debug level so periodic clients do not flood the log.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		latency := int(math.Ceil(float64(time.Since(start).Nanoseconds()) / 1e6))
		statusCode := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": max(c.Writer.Size(), 0),
		})

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}

		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error(msg)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}

type pollStatus struct {
	voltage  float64
	capacity int
}

var (
	printMu       sync.Mutex
	lastStatus    pollStatus
	lastPrintTime time.Time
	// statusRepeatInterval is how often an unchanged reading is logged at
	// debug level instead of trace.
	statusRepeatInterval = 10 * time.Minute
)

// printStatus logs a successful poll. Unchanged readings are demoted to
// trace level until statusRepeatInterval has passed.
func printStatus(voltage float64, capacity int) {
	printMu.Lock()
	defer printMu.Unlock()

	current := pollStatus{voltage: voltage, capacity: capacity}
	fields := logrus.Fields{
		"voltage":  voltage,
		"capacity": capacity,
	}

	if current == lastStatus && time.Since(lastPrintTime) < statusRepeatInterval {
		logrus.WithFields(fields).Trace("ups status")
		return
	}

	logrus.WithFields(fields).Debug("ups status")
	lastStatus = current
	lastPrintTime = time.Now()
}
