// Scenario tests mirroring the six end-to-end flows used to validate the
// router as a whole (lobby broadcast, host/client fan-out, id_req handling,
// remove, and wrong-key rejection).
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsrouter/internal/registry"
)

func newTestServer(t *testing.T, autoRemove, rejectNoID bool) (*httptest.Server, *Server) {
	t.Helper()
	reg := registry.New()
	srv := New(reg, "test-process-secret", autoRemove, rejectNoID, zerolog.Nop())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, srv
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func register(t *testing.T, ts *httptest.Server, key, hostKey, regType, idReq string) (string, int) {
	t.Helper()
	url := fmt.Sprintf("%s/register?key=%s&host_key=%s&reg_type=%s", ts.URL, key, hostKey, regType)
	if idReq != "" {
		url += "&id_req=" + idReq
	}
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body), resp.StatusCode
}

func connectWS(t *testing.T, ts *httptest.Server, id, key, sockType string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := fmt.Sprintf("%s/connect?id=%s&key=%s", wsURL(ts.URL), id, key)
	if sockType != "" {
		url += "&sock_type=" + sockType
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readWithin(t *testing.T, conn *websocket.Conn, d time.Duration) (string, bool) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(d))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}
	return string(data), true
}

func TestScenario_S1_LobbyBroadcast(t *testing.T) {
	ts, _ := newTestServer(t, false, false)

	id, status := register(t, ts, "p", "h", "lobby", "")
	require.Equal(t, http.StatusOK, status)

	s1, _, err := connectWS(t, ts, id, "p", "")
	require.NoError(t, err)
	defer s1.Close()
	s2, _, err := connectWS(t, ts, id, "p", "")
	require.NoError(t, err)
	defer s2.Close()
	s3, _, err := connectWS(t, ts, id, "p", "")
	require.NoError(t, err)
	defer s3.Close()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s1.WriteMessage(websocket.TextMessage, []byte("hello")))

	for _, c := range []*websocket.Conn{s2, s3} {
		msg, ok := readWithin(t, c, time.Second)
		assert.True(t, ok)
		assert.Equal(t, "hello", msg)
	}
	_, ok := readWithin(t, s1, 200*time.Millisecond)
	assert.False(t, ok, "sender must not receive its own broadcast")
}

func TestScenario_S2_HostClient(t *testing.T) {
	ts, _ := newTestServer(t, false, false)

	id, status := register(t, ts, "k", "k", "hostclient", "")
	require.Equal(t, http.StatusOK, status)

	host, _, err := connectWS(t, ts, id, "k", "host")
	require.NoError(t, err)
	defer host.Close()
	clientA, _, err := connectWS(t, ts, id, "k", "client")
	require.NoError(t, err)
	defer clientA.Close()
	clientB, _, err := connectWS(t, ts, id, "k", "client")
	require.NoError(t, err)
	defer clientB.Close()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, host.WriteMessage(websocket.TextMessage, []byte("H")))

	for _, c := range []*websocket.Conn{clientA, clientB} {
		msg, ok := readWithin(t, c, time.Second)
		assert.True(t, ok)
		assert.Equal(t, "H", msg)
	}
	_, ok := readWithin(t, host, 200*time.Millisecond)
	assert.False(t, ok)

	require.NoError(t, clientA.WriteMessage(websocket.TextMessage, []byte("A")))
	msg, ok := readWithin(t, host, time.Second)
	assert.True(t, ok)
	assert.Equal(t, "A", msg)
	_, ok = readWithin(t, clientB, 200*time.Millisecond)
	assert.False(t, ok, "clientB must not see clientA's direct-to-host message")
}

func TestScenario_S3_RequestedIDAccepted(t *testing.T) {
	ts, _ := newTestServer(t, false, true)

	id, status := register(t, ts, "p", "h", "lobby", "abcd1234")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "abcd1234", id)

	_, status = register(t, ts, "p", "h", "lobby", "abcd1234")
	assert.Equal(t, http.StatusConflict, status)
}

func TestScenario_S4_RequestedIDWrongLength(t *testing.T) {
	tsReject, _ := newTestServer(t, false, true)
	_, status := register(t, tsReject, "p", "h", "lobby", "abc")
	assert.Equal(t, http.StatusBadRequest, status)

	tsNoReject, _ := newTestServer(t, false, false)
	id, status := register(t, tsNoReject, "p", "h", "lobby", "abc")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, id, 8)
}

func TestScenario_S5_RemoveFlow(t *testing.T) {
	ts, _ := newTestServer(t, false, false)

	id, status := register(t, ts, "p", "h", "lobby", "")
	require.Equal(t, http.StatusOK, status)

	s1, _, err := connectWS(t, ts, id, "p", "")
	require.NoError(t, err)
	defer s1.Close()
	s2, _, err := connectWS(t, ts, id, "p", "")
	require.NoError(t, err)
	defer s2.Close()
	s3, _, err := connectWS(t, ts, id, "p", "")
	require.NoError(t, err)
	defer s3.Close()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("%s/remove?id=%s&key=p&host_key=h", ts.URL, id))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, _, err = connectWS(t, ts, id, "p", "")
	require.Error(t, err, "connect to a removed registration must fail")

	deadline := time.Now().Add(time.Second)
	for _, c := range []*websocket.Conn{s1, s2, s3} {
		for time.Now().Before(deadline) {
			_ = c.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}
}

func TestScenario_S6_WrongConnectKey(t *testing.T) {
	ts, srv := newTestServer(t, false, false)

	id, status := register(t, ts, "p", "h", "lobby", "")
	require.Equal(t, http.StatusOK, status)

	_, resp, err := connectWS(t, ts, id, "wrong", "")
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	reg, ok := srv.reg.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, 0, reg.ConnectionCount())
}

func TestHandleRegister_MissingRegType(t *testing.T) {
	ts, _ := newTestServer(t, false, false)
	resp, err := http.Get(fmt.Sprintf("%s/register?key=p&host_key=h", ts.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRemove_IdempotentNotFound(t *testing.T) {
	ts, _ := newTestServer(t, false, false)
	id, _ := register(t, ts, "p", "h", "lobby", "")

	resp, err := http.Get(fmt.Sprintf("%s/remove?id=%s&key=p&host_key=h", ts.URL, id))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(fmt.Sprintf("%s/remove?id=%s&key=p&host_key=h", ts.URL, id))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleStats_ReportsConnectionCount(t *testing.T) {
	ts, _ := newTestServer(t, false, false)
	id, _ := register(t, ts, "p", "h", "lobby", "")

	conn, _, err := connectWS(t, ts, id, "p", "")
	require.NoError(t, err)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Len(t, stats.Registrations, 1)
	assert.Equal(t, id, stats.Registrations[0].ID)
	assert.Equal(t, 1, stats.Registrations[0].Connections)
}
