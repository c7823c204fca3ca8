package core

import (
	"encoding/json"
	"testing"

	"github.com/talkwire/talkwire-server/internal/store"
)

func TestCallMissedWhenReceiverOffline(t *testing.T) {
	st := newMemStore()
	hub, convID, cancel := startHub(t, st)
	defer cancel()

	alice := NewClient("a1", 1, "alice")
	hub.RegisterClient(alice)

	alice.Commands <- &Command{
		Kind:           CommandInitiateCall,
		ConversationID: convID,
		ReceiverID:     2,
		Media:          store.CallAudio,
	}

	ev := mustEvent(t, alice.Events, EventCallFailed)
	if ev.Call == nil || ev.Call.Reason != "User is offline" {
		t.Fatalf("unexpected failure event: %+v", ev)
	}
	mustNoEvent(t, alice.Events, EventCallIncoming)

	var calls []*store.Call
	st.mu.Lock()
	for _, c := range st.calls {
		calls = append(calls, c)
	}
	st.mu.Unlock()
	if len(calls) != 1 || calls[0].Status != store.CallMissed {
		t.Fatalf("expected one missed call, got %+v", calls)
	}
}

func TestCallLifecycleAcceptAndEnd(t *testing.T) {
	st := newMemStore()
	hub, convID, cancel := startHub(t, st)
	defer cancel()

	alice := NewClient("a1", 1, "alice")
	bob := NewClient("b1", 2, "bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	alice.Commands <- &Command{
		Kind:           CommandInitiateCall,
		ConversationID: convID,
		ReceiverID:     2,
		Media:          store.CallVideo,
	}

	incoming := mustEvent(t, bob.Events, EventCallIncoming)
	if incoming.Call == nil || incoming.Call.CallerID != 1 || incoming.Call.CallerName != "alice" {
		t.Fatalf("unexpected incoming call: %+v", incoming)
	}
	roomID := incoming.Call.RoomID
	if roomID == "" {
		t.Fatalf("expected a room identifier")
	}

	initiated := mustEvent(t, alice.Events, EventCallInitiated)
	if initiated.Call.Call.Status != store.CallRinging {
		t.Fatalf("expected ringing, got %s", initiated.Call.Call.Status)
	}

	bob.Commands <- &Command{Kind: CommandAcceptCall, RoomID: roomID}

	accepted := mustEvent(t, alice.Events, EventCallAccepted)
	if accepted.Call.UserID != 2 || accepted.Call.RoomID != roomID {
		t.Fatalf("unexpected accepted event: %+v", accepted)
	}
	mustEvent(t, bob.Events, EventCallAccepted)

	stored := st.callByRoom(roomID)
	if stored.Status != store.CallOngoing || stored.StartedAt == nil {
		t.Fatalf("expected ongoing with start stamp, got %+v", stored)
	}

	alice.Commands <- &Command{Kind: CommandEndCall, RoomID: roomID}
	mustEvent(t, alice.Events, EventCallEnded)
	mustEvent(t, bob.Events, EventCallEnded)

	stored = st.callByRoom(roomID)
	if stored.Status != store.CallEnded || stored.EndedAt == nil {
		t.Fatalf("expected ended call, got %+v", stored)
	}
	want := int64(stored.EndedAt.Sub(*stored.StartedAt).Seconds())
	if stored.Duration != want {
		t.Fatalf("duration %d, want %d", stored.Duration, want)
	}

	// The signaling room is gone: relays into it deliver nothing.
	alice.Commands <- &Command{
		Kind:   CommandRelaySignal,
		RoomID: roomID,
		Signal: &SignalPayload{Kind: SignalOffer, Payload: json.RawMessage(`{}`)},
	}
	mustNoEvent(t, bob.Events, EventSignal)
}

func TestCallAcceptRequiresRinging(t *testing.T) {
	st := newMemStore()
	hub, convID, cancel := startHub(t, st)
	defer cancel()

	alice := NewClient("a1", 1, "alice")
	bob := NewClient("b1", 2, "bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	// Unknown room.
	bob.Commands <- &Command{Kind: CommandAcceptCall, RoomID: "no-such-room"}
	ev := mustEvent(t, bob.Events, EventCallFailed)
	if ev.Call.Reason != "Call not found" {
		t.Fatalf("unexpected reason: %q", ev.Call.Reason)
	}

	// Rejected call cannot be accepted afterwards.
	alice.Commands <- &Command{
		Kind:           CommandInitiateCall,
		ConversationID: convID,
		ReceiverID:     2,
		Media:          store.CallAudio,
	}
	roomID := mustEvent(t, bob.Events, EventCallIncoming).Call.RoomID

	bob.Commands <- &Command{Kind: CommandRejectCall, RoomID: roomID}
	rejected := mustEvent(t, alice.Events, EventCallRejected)
	if rejected.Call.RoomID != roomID {
		t.Fatalf("unexpected rejected event: %+v", rejected)
	}
	if stored := st.callByRoom(roomID); stored.Status != store.CallRejected {
		t.Fatalf("expected rejected status, got %s", stored.Status)
	}

	bob.Commands <- &Command{Kind: CommandAcceptCall, RoomID: roomID}
	ev = mustEvent(t, bob.Events, EventCallFailed)
	if ev.Call.Reason != "Call not found" {
		t.Fatalf("expected call not found after reject, got %q", ev.Call.Reason)
	}
	if stored := st.callByRoom(roomID); stored.Status != store.CallRejected {
		t.Fatalf("terminal state mutated: %s", stored.Status)
	}
}

func TestCallRoomJoinLeaveAndSignalRelay(t *testing.T) {
	st := newMemStore()
	hub, convID, cancel := startHub(t, st)
	defer cancel()
	st.addUser(3, "carol")

	alice := NewClient("a1", 1, "alice")
	bob := NewClient("b1", 2, "bob")
	carol := NewClient("c1", 3, "carol")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	hub.RegisterClient(carol)

	alice.Commands <- &Command{
		Kind:           CommandInitiateCall,
		ConversationID: convID,
		ReceiverID:     2,
		Media:          store.CallVideo,
	}
	roomID := mustEvent(t, bob.Events, EventCallIncoming).Call.RoomID
	bob.Commands <- &Command{Kind: CommandAcceptCall, RoomID: roomID}
	mustEvent(t, alice.Events, EventCallAccepted)

	// Late joiner: existing members are notified.
	carol.Commands <- &Command{Kind: CommandJoinCallRoom, RoomID: roomID}
	joined := mustEvent(t, alice.Events, EventCallParticipantJoined)
	if joined.Call.UserID != 3 || joined.Call.ConnID != "c1" {
		t.Fatalf("unexpected join event: %+v", joined)
	}
	mustEvent(t, bob.Events, EventCallParticipantJoined)
	mustNoEvent(t, carol.Events, EventCallParticipantJoined)

	// Room broadcast relay excludes the sender.
	alice.Commands <- &Command{
		Kind:   CommandRelaySignal,
		RoomID: roomID,
		Signal: &SignalPayload{Kind: SignalOffer, Payload: json.RawMessage(`{"sdp":"v=0"}`)},
	}
	sig := mustEvent(t, bob.Events, EventSignal)
	if sig.Signal.Kind != SignalOffer || sig.Signal.From != "a1" {
		t.Fatalf("unexpected signal: %+v", sig.Signal)
	}
	mustEvent(t, carol.Events, EventSignal)
	mustNoEvent(t, alice.Events, EventSignal)

	// Unicast relay targets exactly one connection.
	bob.Commands <- &Command{
		Kind:   CommandRelaySignal,
		RoomID: roomID,
		Signal: &SignalPayload{Kind: SignalAnswer, Payload: json.RawMessage(`{}`), TargetConn: "a1"},
	}
	sig = mustEvent(t, alice.Events, EventSignal)
	if sig.Signal.Kind != SignalAnswer || sig.Signal.From != "b1" {
		t.Fatalf("unexpected unicast signal: %+v", sig.Signal)
	}
	mustNoEvent(t, carol.Events, EventSignal)

	// Departure notifies the remaining members.
	carol.Commands <- &Command{Kind: CommandLeaveCallRoom, RoomID: roomID}
	left := mustEvent(t, bob.Events, EventCallParticipantLeft)
	if left.Call.UserID != 3 {
		t.Fatalf("unexpected leave event: %+v", left)
	}
}

func TestInitiateCallRequiresMembership(t *testing.T) {
	st := newMemStore()
	hub, convID, cancel := startHub(t, st)
	defer cancel()
	st.addUser(3, "carol")

	carol := NewClient("c1", 3, "carol")
	hub.RegisterClient(carol)

	carol.Commands <- &Command{
		Kind:           CommandInitiateCall,
		ConversationID: convID,
		ReceiverID:     1,
		Media:          store.CallAudio,
	}

	ev := mustEvent(t, carol.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotParticipant {
		t.Fatalf("unexpected error event: %+v", ev)
	}

	st.mu.Lock()
	stored := len(st.calls)
	st.mu.Unlock()
	if stored != 0 {
		t.Fatalf("call should not be persisted, found %d", stored)
	}
}

func TestGroupCallRingsAllParticipants(t *testing.T) {
	st := newMemStore()
	hub, _, cancel := startHub(t, st)
	defer cancel()
	st.addUser(3, "carol")
	groupID := st.addConversation(1, 2, 3)

	alice := NewClient("a1", 1, "alice")
	bob := NewClient("b1", 2, "bob")
	carol := NewClient("c1", 3, "carol")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	hub.RegisterClient(carol)

	// No explicit receiver: every other participant is rung.
	alice.Commands <- &Command{
		Kind:           CommandInitiateCall,
		ConversationID: groupID,
		Media:          store.CallVideo,
	}

	bobIn := mustEvent(t, bob.Events, EventCallIncoming)
	carolIn := mustEvent(t, carol.Events, EventCallIncoming)
	if bobIn.Call.RoomID != carolIn.Call.RoomID {
		t.Fatalf("participants rung into different rooms: %s vs %s", bobIn.Call.RoomID, carolIn.Call.RoomID)
	}

	initiated := mustEvent(t, alice.Events, EventCallInitiated)
	if initiated.Call.Call.Status != store.CallRinging {
		t.Fatalf("expected ringing, got %s", initiated.Call.Call.Status)
	}
	if initiated.Call.Call.ReceiverID != nil {
		t.Fatalf("group call should have no single receiver: %+v", initiated.Call.Call)
	}

	stored := st.callByRoom(bobIn.Call.RoomID)
	for _, want := range []int64{1, 2, 3} {
		found := false
		for _, pid := range stored.Participants {
			if pid == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("participant %d missing from stored call: %+v", want, stored.Participants)
		}
	}
}
