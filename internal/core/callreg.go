package core

// ActiveCall is the in-memory record of a call in flight: who is currently
// in the signaling room, regardless of the persisted call status.
type ActiveCall struct {
	CallID       string
	RoomID       string
	Participants map[int64]struct{}
}

// CallRegistry is an arena of active calls keyed by call identifier, with
// the signaling room identifier as a secondary index. Entries are removed
// on terminal transitions or when the last participant leaves.
type CallRegistry struct {
	byID   map[string]*ActiveCall
	byRoom map[string]string // room ID -> call ID
}

// NewCallRegistry constructs an empty registry.
func NewCallRegistry() *CallRegistry {
	return &CallRegistry{
		byID:   make(map[string]*ActiveCall),
		byRoom: make(map[string]string),
	}
}

// Add registers a new active call with the caller as sole participant.
func (r *CallRegistry) Add(callID, roomID string, callerID int64) *ActiveCall {
	entry := &ActiveCall{
		CallID:       callID,
		RoomID:       roomID,
		Participants: map[int64]struct{}{callerID: {}},
	}
	r.byID[callID] = entry
	r.byRoom[roomID] = callID
	return entry
}

// ByRoom looks up an active call by its signaling room. Returns nil if the
// room has no active call.
func (r *CallRegistry) ByRoom(roomID string) *ActiveCall {
	callID, ok := r.byRoom[roomID]
	if !ok {
		return nil
	}
	return r.byID[callID]
}

// Remove deletes an entry by call identifier.
func (r *CallRegistry) Remove(callID string) {
	entry, ok := r.byID[callID]
	if !ok {
		return
	}
	delete(r.byRoom, entry.RoomID)
	delete(r.byID, callID)
}

// RemoveByRoom deletes an entry by signaling room identifier.
func (r *CallRegistry) RemoveByRoom(roomID string) {
	if callID, ok := r.byRoom[roomID]; ok {
		r.Remove(callID)
	}
}

// Join adds a participant to a call's room. Returns false if the room has
// no active call.
func (r *CallRegistry) Join(roomID string, userID int64) bool {
	entry := r.ByRoom(roomID)
	if entry == nil {
		return false
	}
	entry.Participants[userID] = struct{}{}
	return true
}

// Leave removes a participant. Returns true if the call is now empty and
// its entry was removed.
func (r *CallRegistry) Leave(roomID string, userID int64) bool {
	entry := r.ByRoom(roomID)
	if entry == nil {
		return false
	}
	delete(entry.Participants, userID)
	if len(entry.Participants) == 0 {
		r.Remove(entry.CallID)
		return true
	}
	return false
}
