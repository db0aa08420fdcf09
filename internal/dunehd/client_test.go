package dunehd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const playingStatus = `{
	"command_status": "ok",
	"player_state": "file_playback",
	"playback_state": "playing",
	"playback_speed": "256",
	"playback_duration": "5400",
	"playback_position": "61",
	"playback_is_buffering": "0",
	"playback_volume": "42",
	"playback_mute": "1",
	"playback_caption": "Big Buck Bunny",
	"playback_picture": "/tmp/cover.jpg",
	"protocol_version": "4",
	"product_id": "tv175u",
	"product_name": "Dune HD Pro 4K",
	"serial_number": "0000-0001-ABCD",
	"commercial_serial_number": "DUNE-42",
	"firmware_version": "220211_2021_r22",
	"ui_state": {"screen": {"bg_url": "/tmp/bg.jpg"}}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(strings.TrimPrefix(server.URL, "http://"), time.Second)
	t.Cleanup(client.Close)
	return client, server
}

func TestUIStateParsesStringEncodedFields(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cgi-bin/do", r.URL.Path)
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(playingStatus))
	})

	status, err := client.UIState(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ui_state", gotQuery.Get("cmd"))
	require.Equal(t, "json", gotQuery.Get("result_syntax"))

	require.Equal(t, CommandStatusOK, status.CommandStatus)
	require.Equal(t, PlayerStateFilePlayback, status.PlayerState)
	require.Equal(t, PlaybackStatePlaying, status.PlaybackState)
	require.Equal(t, 5400, IntValue(status.PlaybackDuration))
	require.Equal(t, 61, IntValue(status.PlaybackPosition))
	require.Equal(t, 42, int(status.PlaybackVolume))
	require.True(t, bool(status.PlaybackMute))
	require.False(t, status.Buffering())
	require.Equal(t, "/tmp/bg.jpg", status.BackgroundURL())
	require.Equal(t, "0000-0001-ABCD", status.SerialNumber)
	require.Equal(t, "file_playback", status.Raw["player_state"])
}

func TestSendCommandRejectsMissingRequiredFields(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"player_state": "navigator", "playback_volume": 10}`))
	})

	_, err := client.Status(context.Background())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, CommandGetStatus, parseErr.Command)
	require.True(t, IsTransportError(err))
}

func TestStatusSendsStatusCommand(t *testing.T) {
	var gotCmd string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotCmd = r.URL.Query().Get("cmd")
		_, _ = w.Write([]byte(playingStatus))
	})

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, "status", gotCmd)
	require.Equal(t, string(CommandGetStatus), gotCmd)
	require.Equal(t, CommandStatusOK, status.CommandStatus)
}

func TestSendCommandRejectsMalformedJSON(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})

	_, err := client.Status(context.Background())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestSendCommandHTTPError(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Status(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestSendCommandUnreachable(t *testing.T) {
	client, server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.Status(context.Background())
	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	require.True(t, IsTransportError(err))
}

func TestSendCommandTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client := NewClient(strings.TrimPrefix(server.URL, "http://"), 50*time.Millisecond)
	_, err := client.Status(context.Background())
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestSendCommandReturnsContextErrorOnCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client := NewClient(strings.TrimPrefix(server.URL, "http://"), 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Status(ctx)
	require.True(t, errors.Is(err, context.Canceled))
	require.False(t, IsTransportError(err))
}

func TestClientSerializesRequests(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			current := maxInFlight.Load()
			if n <= current || maxInFlight.CompareAndSwap(current, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(playingStatus))
	})

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := client.UIState(context.Background())
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
	require.Equal(t, int32(1), maxInFlight.Load())
}

func TestSendIRCodeWireFormat(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(playingStatus))
	})

	_, err := client.SendIRCode(context.Background(), IRPlayPause)
	require.NoError(t, err)
	require.Equal(t, "ir_code", gotQuery.Get("cmd"))
	require.Equal(t, "B748CFCF", gotQuery.Get("ir_code"))
}

func TestIRCodeWire(t *testing.T) {
	require.Equal(t, "B748CFCF", IRPlay.Wire())
	require.Equal(t, "F50ACFCF", IRDigit0.Wire())
	require.Equal(t, "BF40CFCF", IRA.Wire())
}

func TestSetPlaybackStateParams(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(playingStatus))
	})

	_, err := client.SetVolume(context.Background(), 55)
	require.NoError(t, err)
	require.Equal(t, "set_playback_state", gotQuery.Get("cmd"))
	require.Equal(t, "55", gotQuery.Get("volume"))

	_, err = client.Mute(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "0", gotQuery.Get("mute"))

	_, err = client.Seek(context.Background(), 600)
	require.NoError(t, err)
	require.Equal(t, "600", gotQuery.Get("position"))
}

func TestGetFileReturnsBytes(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "get_file", r.URL.Query().Get("cmd"))
		require.Empty(t, r.URL.Query().Get("result_syntax"))
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	data, err := client.GetFile(context.Background(), "/tmp/cover.png")
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestFileURL(t *testing.T) {
	client := NewClient("192.168.1.50", time.Second)
	require.Equal(t,
		"http://192.168.1.50/cgi-bin/do?cmd=get_file&path=%2Ftmp%2Fcover+art.jpg",
		client.FileURL("/tmp/cover art.jpg"))
}
