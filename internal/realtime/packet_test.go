package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePacket_Event(t *testing.T) {
	p, err := ParsePacket(`42["session-change-status-web",{"id":"s1","status":"PLAYING"}]`)
	require.NoError(t, err)
	require.Equal(t, frameMessage, p.Frame)
	require.Equal(t, packetEvent, p.Type)
	require.Equal(t, EventSessionStatusChange, p.Event)
	require.JSONEq(t, `{"id":"s1","status":"PLAYING"}`, string(p.Payload))
}

func TestParsePacket_EventWithNamespaceAndAck(t *testing.T) {
	p, err := ParsePacket(`42/admin,17["device-connection"]`)
	require.NoError(t, err)
	require.Equal(t, "/admin", p.Namespace)
	require.Equal(t, EventDeviceConnection, p.Event)
	require.Nil(t, p.Payload)
}

func TestParsePacket_ControlFrames(t *testing.T) {
	p, err := ParsePacket(`0{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`)
	require.NoError(t, err)
	require.Equal(t, frameOpen, p.Frame)
	require.JSONEq(t, `{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`, string(p.Payload))

	p, err = ParsePacket("2")
	require.NoError(t, err)
	require.Equal(t, framePing, p.Frame)

	p, err = ParsePacket(`40{"sid":"xyz"}`)
	require.NoError(t, err)
	require.Equal(t, packetConnect, p.Type)

	p, err = ParsePacket(`44{"message":"not authorized"}`)
	require.NoError(t, err)
	require.Equal(t, packetConnectError, p.Type)
}

func TestParsePacket_Invalid(t *testing.T) {
	_, err := ParsePacket("")
	require.Error(t, err)

	_, err = ParsePacket("9")
	require.Error(t, err)

	_, err = ParsePacket(`42{"not":"array"}`)
	require.Error(t, err)

	_, err = ParsePacket(`42[]`)
	require.Error(t, err)
}

func TestEncodeEvent(t *testing.T) {
	frame, err := EncodeEvent("join-admin", nil)
	require.NoError(t, err)
	require.Equal(t, `42["join-admin"]`, frame)

	frame, err = EncodeEvent("ping-device", map[string]string{"id": "d1"})
	require.NoError(t, err)
	require.Equal(t, `42["ping-device",{"id":"d1"}]`, frame)
}

func TestEncodeConnect(t *testing.T) {
	frame, err := EncodeConnect(nil)
	require.NoError(t, err)
	require.Equal(t, "40", frame)

	frame, err = EncodeConnect(map[string]string{"token": "t"})
	require.NoError(t, err)
	require.Equal(t, `40{"token":"t"}`, frame)
}

func TestSocketURL(t *testing.T) {
	u, err := socketURL("http://localhost:3000")
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:3000/socket.io/?EIO=4&transport=websocket", u)

	u, err = socketURL("https://api.example.com/")
	require.NoError(t, err)
	require.Equal(t, "wss://api.example.com/socket.io/?EIO=4&transport=websocket", u)

	_, err = socketURL("ftp://example.com")
	require.Error(t, err)
}
