package http

import (
	"encoding/json"

	"github.com/talkwire/talkwire-server/internal/core"
	"github.com/talkwire/talkwire-server/internal/proto"
	"github.com/talkwire/talkwire-server/internal/store"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypingStart, proto.InboundTypingStop:
		var d proto.TypingData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.ConversationID <= 0 {
			return nil, badRequest("conversationId is required"), nil
		}
		kind := core.CommandTypingStart
		if inbound.Type == proto.InboundTypingStop {
			kind = core.CommandTypingStop
		}
		return &core.Command{Kind: kind, ConversationID: d.ConversationID}, nil, nil

	case proto.InboundMessageSend:
		var d proto.MessageSendData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.ConversationID <= 0 {
			return nil, badRequest("conversationId is required"), nil
		}
		msgType := store.MessageType(d.Type)
		if d.Type == "" {
			msgType = store.MessageText
		}
		switch msgType {
		case store.MessageText, store.MessageImage, store.MessageVideo,
			store.MessageAudio, store.MessageFile, store.MessageSystem:
		default:
			return nil, badRequest("unknown message type"), nil
		}
		var file *core.FileMeta
		if d.FileURL != "" {
			file = &core.FileMeta{
				URL:       d.FileURL,
				Name:      d.FileName,
				Size:      d.FileSize,
				MimeType:  d.MimeType,
				Thumbnail: d.Thumbnail,
			}
		}
		return &core.Command{
			Kind:           core.CommandSendMessage,
			ConversationID: d.ConversationID,
			Content:        d.Content,
			MsgType:        msgType,
			File:           file,
		}, nil, nil

	case proto.InboundMessageEdit:
		var d proto.MessageEditData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.MessageID <= 0 {
			return nil, badRequest("messageId is required"), nil
		}
		return &core.Command{
			Kind:      core.CommandEditMessage,
			MessageID: d.MessageID,
			Content:   d.Content,
		}, nil, nil

	case proto.InboundMessageDelete:
		var d proto.MessageDeleteData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.MessageID <= 0 {
			return nil, badRequest("messageId is required"), nil
		}
		return &core.Command{Kind: core.CommandDeleteMessage, MessageID: d.MessageID}, nil, nil

	case proto.InboundMessageRead:
		var d proto.MessageReadData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.ConversationID <= 0 {
			return nil, badRequest("conversationId is required"), nil
		}
		return &core.Command{
			Kind:           core.CommandMarkRead,
			ConversationID: d.ConversationID,
			MessageIDs:     d.MessageIDs,
		}, nil, nil

	case proto.InboundConversationJoin, proto.InboundConversationLeave:
		var d proto.ConversationData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.ConversationID <= 0 {
			return nil, badRequest("conversationId is required"), nil
		}
		kind := core.CommandJoinConversation
		if inbound.Type == proto.InboundConversationLeave {
			kind = core.CommandLeaveConversation
		}
		return &core.Command{Kind: kind, ConversationID: d.ConversationID}, nil, nil

	case proto.InboundCallInitiate:
		var d proto.CallInitiateData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.ConversationID <= 0 {
			return nil, badRequest("conversationId is required"), nil
		}
		return &core.Command{
			Kind:           core.CommandInitiateCall,
			ConversationID: d.ConversationID,
			ReceiverID:     d.ReceiverID,
			Media:          store.CallMediaType(d.Type),
		}, nil, nil

	case proto.InboundCallAccept, proto.InboundCallReject, proto.InboundCallEnd,
		proto.InboundCallJoin, proto.InboundCallLeave:
		var d proto.CallRoomData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.RoomID == "" {
			return nil, badRequest("roomId is required"), nil
		}
		var kind core.CommandKind
		switch inbound.Type {
		case proto.InboundCallAccept:
			kind = core.CommandAcceptCall
		case proto.InboundCallReject:
			kind = core.CommandRejectCall
		case proto.InboundCallEnd:
			kind = core.CommandEndCall
		case proto.InboundCallJoin:
			kind = core.CommandJoinCallRoom
		case proto.InboundCallLeave:
			kind = core.CommandLeaveCallRoom
		}
		return &core.Command{Kind: kind, RoomID: d.RoomID}, nil, nil

	case proto.InboundWebRTCOffer, proto.InboundWebRTCAnswer, proto.InboundWebRTCICE:
		var d proto.SignalData
		if err := json.Unmarshal(inbound.Data, &d); err != nil {
			return nil, badRequest("malformed payload"), nil
		}
		if d.RoomID == "" && d.To == "" {
			return nil, badRequest("roomId is required"), nil
		}
		var kind core.SignalKind
		var payload json.RawMessage
		switch inbound.Type {
		case proto.InboundWebRTCOffer:
			kind, payload = core.SignalOffer, d.Offer
		case proto.InboundWebRTCAnswer:
			kind, payload = core.SignalAnswer, d.Answer
		case proto.InboundWebRTCICE:
			kind, payload = core.SignalICECandidate, d.Candidate
		}
		if len(payload) == 0 {
			return nil, badRequest("signal payload is required"), nil
		}
		return &core.Command{
			Kind:   core.CommandRelaySignal,
			RoomID: d.RoomID,
			Signal: &core.SignalPayload{
				Kind:       kind,
				Payload:    payload,
				TargetConn: d.To,
			},
		}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}, nil
	}
}

func outboundEvent(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventUserOnline:
		return outboundEvent(proto.EventUserOnline, proto.UserStatusData{
			UserID: event.UserID,
			Status: string(event.Status),
		})
	case core.EventUserOffline:
		lastSeen := event.LastSeen
		return outboundEvent(proto.EventUserOffline, proto.UserStatusData{
			UserID:   event.UserID,
			Status:   string(event.Status),
			LastSeen: &lastSeen,
		})
	case core.EventTypingStart, core.EventTypingStop:
		name := proto.EventTypingStart
		if event.Kind == core.EventTypingStop {
			name = proto.EventTypingStop
		}
		return outboundEvent(name, proto.TypingEventData{
			ConversationID: event.ConversationID,
			UserID:         event.UserID,
			Username:       event.Username,
		})
	case core.EventMessageNew:
		return outboundEvent(proto.EventMessageNew, proto.MessageNewData{
			Message:        event.Message,
			ConversationID: event.ConversationID,
		})
	case core.EventMessageEdited:
		return outboundEvent(proto.EventMessageEdited, proto.MessageEditedData{
			Message: event.Message,
		})
	case core.EventMessageDeleted:
		return outboundEvent(proto.EventMessageDeleted, proto.MessageDeletedData{
			MessageID:      event.MessageID,
			ConversationID: event.ConversationID,
		})
	case core.EventMessagesRead:
		return outboundEvent(proto.EventMessagesRead, proto.MessagesReadData{
			ConversationID: event.ConversationID,
			UserID:         event.UserID,
			MessageIDs:     event.MessageIDs,
		})
	case core.EventCallIncoming:
		return outboundEvent(proto.EventCallIncoming, proto.CallIncomingData{
			Call:   event.Call.Call,
			RoomID: event.Call.RoomID,
			Caller: &proto.CallerInfo{
				ID:       event.Call.CallerID,
				Username: event.Call.CallerName,
			},
		})
	case core.EventCallInitiated:
		return outboundEvent(proto.EventCallInitiated, callStateData(event))
	case core.EventCallAccepted:
		return outboundEvent(proto.EventCallAccepted, callStateData(event))
	case core.EventCallRejected:
		return outboundEvent(proto.EventCallRejected, callStateData(event))
	case core.EventCallEnded:
		return outboundEvent(proto.EventCallEnded, callStateData(event))
	case core.EventCallFailed:
		return outboundEvent(proto.EventCallFailed, proto.CallFailedData{
			Error: event.Call.Reason,
		})
	case core.EventCallParticipantJoined, core.EventCallParticipantLeft:
		name := proto.EventCallParticipantJoined
		if event.Kind == core.EventCallParticipantLeft {
			name = proto.EventCallParticipantLeft
		}
		return outboundEvent(name, proto.CallParticipantData{
			UserID:   event.Call.UserID,
			SocketID: event.Call.ConnID,
		})
	case core.EventSignal:
		data := proto.SignalEventData{From: event.Signal.From}
		var name string
		switch event.Signal.Kind {
		case core.SignalOffer:
			name = proto.EventWebRTCOffer
			data.Offer = event.Signal.Payload
		case core.SignalAnswer:
			name = proto.EventWebRTCAnswer
			data.Answer = event.Signal.Payload
		default:
			name = proto.EventWebRTCICE
			data.Candidate = event.Signal.Payload
		}
		return outboundEvent(name, data)
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func callStateData(event *core.Event) proto.CallStateData {
	return proto.CallStateData{
		Call:   event.Call.Call,
		RoomID: event.Call.RoomID,
		UserID: event.Call.UserID,
	}
}
