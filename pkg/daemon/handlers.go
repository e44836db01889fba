package daemon

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/types"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/version"
)

func (d *daemon) readingResponse() types.ReadingResponse {
	status := d.handler.Status()
	v, _ := d.handler.Voltage()
	c, _ := d.handler.Capacity()
	next, _ := d.poller.Status()

	return types.ReadingResponse{
		Voltage:             v,
		Capacity:            c,
		RawVoltage:          status.Reading.Voltage,
		RawCapacity:         status.Reading.Capacity,
		UpdatedAt:           status.UpdatedAt,
		LastError:           status.LastError,
		LastErrorAt:         status.LastErrorAt,
		ConsecutiveFailures: status.Failures,
		NextPoll:            next,
	}
}

func (d *daemon) getReading(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.readingResponse())
}

func (d *daemon) getSensors(c *gin.Context) {
	ret := make([]types.SensorResponse, 0, len(d.entities))
	for _, e := range d.entities {
		s := types.SensorResponse{
			Name:     e.Name(),
			UniqueID: e.UniqueID(),
			Metric:   string(e.Metric()),
			Unit:     e.Unit(),
			Icon:     e.Icon(),
		}
		if v, ok := e.State(); ok {
			s.State = &v
		}
		ret = append(ret, s)
	}
	c.IndentedJSON(http.StatusOK, ret)
}

// forcePoll polls immediately instead of waiting for the next scheduled
// poll. Unlike scheduled polls, a failure is reported to the caller.
func (d *daemon) forcePoll(c *gin.Context) {
	if err := d.poll(c.Request.Context()); err != nil {
		logrus.Errorf("forced poll failed: %v", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, err.Error())
		return
	}

	c.IndentedJSON(http.StatusOK, d.readingResponse())
}

func (d *daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (d *daemon) streamEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		case <-d.stopCh:
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
