package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxDescriptionBytes = 1 << 20

// descriptionClient is used for UPnP description fetches only. Players that
// are powered down keep their IP but stop answering, so dials fail fast.
var descriptionClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
		IdleConnTimeout: 30 * time.Second,
	},
}

// FetchDescription downloads and parses the device description at location.
func FetchDescription(ctx context.Context, location string) (*DeviceDescription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := descriptionClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("description %s: %s", location, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionBytes))
	if err != nil {
		return nil, fmt.Errorf("description %s: %w", location, err)
	}

	desc, err := ParseDeviceDescription(body)
	switch {
	case err != nil:
		return nil, fmt.Errorf("description %s: %w", location, err)
	case desc == nil:
		return nil, fmt.Errorf("description %s: no device element", location)
	}
	return desc, nil
}
