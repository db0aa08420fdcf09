package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	ssdpMulticast = "239.255.255.250:1900"
	// MediaRendererTarget is the search target Dune-HD players answer to.
	MediaRendererTarget = "urn:schemas-upnp-org:device:MediaRenderer:1"

	searchMX    = 2
	maxDatagram = 2048
)

// Response is one answer to an M-SEARCH.
type Response struct {
	Location string
	USN      string
	Server   string
	ST       string
	Header   http.Header
	From     net.Addr
}

// Search multicasts an M-SEARCH for target passes times, passInterval apart,
// and then collects answers until timeout or ctx is done. Answers are
// deduplicated by USN and returned in arrival order.
func Search(ctx context.Context, target string, passes int, passInterval, timeout time.Duration) ([]Response, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	group, err := net.ResolveUDPAddr("udp4", ssdpMulticast)
	if err != nil {
		return nil, err
	}

	// Unblock a pending read as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	request := searchRequest(target)
	for pass, n := 0, max(passes, 1); pass < n; pass++ {
		if pass > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(passInterval):
			}
		}
		if _, err := conn.WriteTo(request, group); err != nil {
			return nil, fmt.Errorf("send M-SEARCH: %w", err)
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	var (
		responses []Response
		seen      = make(map[string]bool)
		buf       = make([]byte, maxDatagram)
	)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return responses, err
		}

		resp, err := parseResponse(buf[:n])
		if err != nil || resp.Location == "" || resp.USN == "" || seen[resp.USN] {
			continue
		}
		if resp.ST != "" && resp.ST != target {
			continue
		}
		resp.From = from
		seen[resp.USN] = true
		responses = append(responses, resp)
	}

	if ctx.Err() != nil {
		return responses, ctx.Err()
	}
	return responses, nil
}

func searchRequest(target string) []byte {
	return fmt.Appendf(nil, "M-SEARCH * HTTP/1.1\r\n"+
		"HOST: %s\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: %d\r\n"+
		"ST: %s\r\n"+
		"\r\n", ssdpMulticast, searchMX, target)
}

// parseResponse reads an SSDP answer, which is an HTTP/1.1 response without
// a body.
func parseResponse(datagram []byte) (Response, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(datagram)), nil)
	if err != nil {
		return Response{}, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("ssdp: unexpected status %d", resp.StatusCode)
	}
	return Response{
		Location: resp.Header.Get("Location"),
		USN:      resp.Header.Get("USN"),
		Server:   resp.Header.Get("Server"),
		ST:       resp.Header.Get("ST"),
		Header:   resp.Header,
	}, nil
}
