package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/events"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/types"
)

func (c *Client) GetReading() (*types.ReadingResponse, error) {
	ret, err := c.Get("/reading")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get reading")
	}

	var r types.ReadingResponse
	if err := json.Unmarshal([]byte(ret), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal reading")
	}
	return &r, nil
}

func (c *Client) GetSensors() ([]types.SensorResponse, error) {
	ret, err := c.Get("/sensors")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get sensors")
	}

	var sensors []types.SensorResponse
	if err := json.Unmarshal([]byte(ret), &sensors); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal sensors")
	}
	return sensors, nil
}

// Poll asks the daemon to poll the UPS right away.
func (c *Client) Poll() (*types.ReadingResponse, error) {
	ret, err := c.Put("/poll", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to poll")
	}

	var r types.ReadingResponse
	if err := json.Unmarshal([]byte(ret), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal reading")
	}
	return &r, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

// SubscribeEvents streams daemon events until ctx is done or the daemon
// closes the stream. The returned channel is closed at the end.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan events.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to subscribe to events")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, pkgerrors.Errorf("failed to subscribe to events: got %d", resp.StatusCode)
	}

	ch := make(chan events.Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		if err := readEvents(ctx, bufio.NewScanner(resp.Body), ch); err != nil && ctx.Err() == nil {
			logrus.Errorf("event stream ended: %v", err)
		}
	}()

	return ch, nil
}

// readEvents parses a text/event-stream body.
func readEvents(ctx context.Context, sc *bufio.Scanner, ch chan<- events.Event) error {
	var name string
	var data []string

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if name == "" && len(data) == 0 {
				continue
			}
			ev := events.Event{Name: name, Data: json.RawMessage(strings.Join(data, "\n"))}
			name, data = "", nil
			select {
			case ch <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}
