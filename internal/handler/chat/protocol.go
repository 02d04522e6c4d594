package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/talknest/backend/internal/model/chat"
)

// 实时通道事件名
const (
	EventSetUsername   = "set username"
	EventChatMessage   = "chat message"
	EventMediaMessage  = "media message"
	EventSystemMessage = "system message"
)

// timeLayout 对应浏览器 toLocaleTimeString 的常见格式。
const timeLayout = "3:04:05 PM"

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Frame 是通道上双向传输的 JSON 信封。
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MediaPayload 客户端上传完成后发送的媒体引用
type MediaPayload struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// ChatPayload 服务端广播的聊天消息
type ChatPayload struct {
	User string `json:"user"`
	Msg  string `json:"msg"`
	Time string `json:"time"`
}

// MediaBroadcast 服务端广播的媒体消息
type MediaBroadcast struct {
	User string `json:"user"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Time string `json:"time"`
}

type outgoingFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// decodeEvent 将客户端帧转换为入站事件
func decodeEvent(id chat.SessionID, frame Frame) (chat.Event, error) {
	switch frame.Event {
	case EventSetUsername:
		var name string
		if err := unmarshalData(frame, &name); err != nil {
			return nil, err
		}
		return chat.SetNameEvent{SessionID: id, Name: name}, nil
	case EventChatMessage:
		var text string
		if err := unmarshalData(frame, &text); err != nil {
			return nil, err
		}
		return chat.ChatEvent{SessionID: id, Text: text}, nil
	case EventMediaMessage:
		var media MediaPayload
		if err := unmarshalData(frame, &media); err != nil {
			return nil, err
		}
		return chat.MediaEvent{SessionID: id, URL: media.URL, MediaType: media.Type}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

func unmarshalData(frame Frame, v any) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformedPayload, frame.Event)
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, frame.Event, err)
	}
	return nil
}

// encodeMessage 将广播消息转换为发往客户端的帧
func encodeMessage(msg chat.Message) (outgoingFrame, error) {
	switch m := msg.(type) {
	case chat.SystemMessage:
		return outgoingFrame{Event: EventSystemMessage, Data: m.Text}, nil
	case chat.ChatMessage:
		return outgoingFrame{Event: EventChatMessage, Data: ChatPayload{
			User: m.Sender,
			Msg:  m.Text,
			Time: formatTime(m.Timestamp),
		}}, nil
	case chat.MediaMessage:
		return outgoingFrame{Event: EventMediaMessage, Data: MediaBroadcast{
			User: m.Sender,
			URL:  m.URL,
			Type: m.MediaType,
			Time: formatTime(m.Timestamp),
		}}, nil
	default:
		return outgoingFrame{}, fmt.Errorf("unsupported message %T", msg)
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}
