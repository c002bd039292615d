package devserver

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// mustEvent drains one envelope or fails the test.
func mustEvent(t *testing.T, c *Client) realtime.Envelope {
	t.Helper()
	select {
	case env := <-c.Events:
		return env
	case <-time.After(time.Second):
		t.Fatal("expected an event, got none")
		return realtime.Envelope{}
	}
}

// mustNoEvent asserts the client's stream stays quiet.
func mustNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case env := <-c.Events:
		t.Fatalf("unexpected event %q", env.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRoomFanout(t *testing.T) {
	hub := NewHub(nopLogger())
	inRoom := hub.Register("c1", "u1")
	outside := hub.Register("c2", "u2")
	hub.JoinRoom(inRoom, "chat-1")

	hub.EmitToRoom("chat-1", string(realtime.EventMessageSent), realtime.MessageSentData{})

	env := mustEvent(t, inRoom)
	if env.Event != string(realtime.EventMessageSent) {
		t.Fatalf("wrong event %q", env.Event)
	}
	mustNoEvent(t, outside)
}

func TestHubLeaveRoomStopsDelivery(t *testing.T) {
	hub := NewHub(nopLogger())
	c := hub.Register("c1", "u1")
	hub.JoinRoom(c, "chat-1")
	hub.LeaveRoom(c, "chat-1")

	hub.EmitToRoom("chat-1", string(realtime.EventMessageSent), realtime.MessageSentData{})
	mustNoEvent(t, c)
}

func TestHubUserTargetingReachesAllConnections(t *testing.T) {
	hub := NewHub(nopLogger())
	first := hub.Register("c1", "u1")
	second := hub.Register("c2", "u1")
	other := hub.Register("c3", "u2")

	hub.EmitToUsers(string(realtime.EventTrialRequestAccepted), realtime.TrialRequestData{RequestID: "r1"}, "u1")

	mustEvent(t, first)
	mustEvent(t, second)
	mustNoEvent(t, other)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nopLogger())
	a := hub.Register("c1", "u1")
	b := hub.Register("c2", "u2")

	hub.EmitToAll(string(realtime.EventTrialRequestCreated), realtime.TrialRequestData{RequestID: "r1"})

	mustEvent(t, a)
	mustEvent(t, b)
}

func TestHubUnregisterClosesStream(t *testing.T) {
	hub := NewHub(nopLogger())
	c := hub.Register("c1", "u1")
	hub.Unregister(c)

	if _, ok := <-c.Events; ok {
		t.Fatal("events channel must be closed after unregister")
	}

	// A second unregister must not panic.
	hub.Unregister(c)
}

func TestHubDropsWhenConsumerIsSlow(t *testing.T) {
	hub := NewHub(nopLogger())
	c := hub.Register("c1", "u1")

	for i := 0; i < clientBuffer+10; i++ {
		hub.EmitToUsers(string(realtime.EventTrialRequestCreated), realtime.TrialRequestData{RequestID: "r1"}, "u1")
	}

	// The buffer holds exactly clientBuffer events; the rest were dropped
	// instead of blocking the emitter.
	if got := len(c.Events); got != clientBuffer {
		t.Fatalf("expected %d buffered events, got %d", clientBuffer, got)
	}
}
