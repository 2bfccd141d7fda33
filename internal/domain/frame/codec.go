package frame

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Type OCPP帧类型
type Type int

const (
	// Call 请求帧
	Call Type = 2
	// CallResult 响应帧
	CallResult Type = 3
	// CallError 错误帧
	CallError Type = 4
)

// ErrMalformed 无法识别为OCPP帧的输入
// 调用方必须原样转发该帧，绝不能因为无法分类而丢弃消息
var ErrMalformed = errors.New("malformed ocpp frame")

// Frame 已解析的OCPP帧
// raw保留原始线缆字节，未被规则修改的帧编码时逐字节还原
type Frame struct {
	Type    Type
	ID      string
	Action  string
	Payload json.RawMessage

	// CallError专用字段
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage

	raw []byte
}

// Decode 解析原始文本帧
// 帧是JSON数组: [2, id, action, payload] / [3, id, payload] / [4, id, code, description, details?]
func Decode(data []byte) (*Frame, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(elements) < 3 {
		return nil, fmt.Errorf("%w: array too short (%d elements)", ErrMalformed, len(elements))
	}

	var msgType int
	if err := json.Unmarshal(elements[0], &msgType); err != nil {
		return nil, fmt.Errorf("%w: non-numeric message type", ErrMalformed)
	}

	var msgID string
	if err := json.Unmarshal(elements[1], &msgID); err != nil {
		return nil, fmt.Errorf("%w: non-string message id", ErrMalformed)
	}

	f := &Frame{Type: Type(msgType), ID: msgID, raw: append([]byte(nil), data...)}

	switch Type(msgType) {
	case Call:
		if len(elements) != 4 {
			return nil, fmt.Errorf("%w: Call must have 4 elements", ErrMalformed)
		}
		if err := json.Unmarshal(elements[2], &f.Action); err != nil {
			return nil, fmt.Errorf("%w: non-string action", ErrMalformed)
		}
		f.Payload = elements[3]
		return f, nil

	case CallResult:
		f.Payload = elements[2]
		return f, nil

	case CallError:
		if len(elements) < 4 {
			return nil, fmt.Errorf("%w: CallError must have at least 4 elements", ErrMalformed)
		}
		if err := json.Unmarshal(elements[2], &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("%w: non-string error code", ErrMalformed)
		}
		if err := json.Unmarshal(elements[3], &f.ErrorDescription); err != nil {
			return nil, fmt.Errorf("%w: non-string error description", ErrMalformed)
		}
		if len(elements) >= 5 {
			f.ErrorDetails = elements[4]
		}
		return f, nil

	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrMalformed, msgType)
	}
}

// Encode 序列化帧
// 只要payload未被替换就返回解码时保留的原始字节
func (f *Frame) Encode() ([]byte, error) {
	if f.raw != nil {
		return f.raw, nil
	}

	payload := f.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	var elements []interface{}
	switch f.Type {
	case Call:
		elements = []interface{}{int(f.Type), f.ID, f.Action, payload}
	case CallResult:
		elements = []interface{}{int(f.Type), f.ID, payload}
	case CallError:
		details := f.ErrorDetails
		if details == nil {
			details = json.RawMessage("{}")
		}
		elements = []interface{}{int(f.Type), f.ID, f.ErrorCode, f.ErrorDescription, details}
	default:
		return nil, fmt.Errorf("cannot encode message type %d", f.Type)
	}

	data, err := json.Marshal(elements)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

// WithPayload 返回替换了payload的帧副本
// 副本不再携带原始字节，编码时重新序列化
func (f *Frame) WithPayload(payload json.RawMessage) *Frame {
	clone := *f
	clone.Payload = payload
	clone.raw = nil
	return &clone
}

// IsCall 是否为请求帧
func (f *Frame) IsCall() bool {
	return f.Type == Call
}

// UnmarshalPayload 把帧payload解析到给定结构
// nil payload视作空对象，不报错
func UnmarshalPayload(payload json.RawMessage, v interface{}) error {
	if payload == nil {
		return nil
	}
	return json.Unmarshal(payload, v)
}

// NewCall 构造携带新随机消息ID的请求帧
func NewCall(action string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", action, err)
	}
	return &Frame{
		Type:    Call,
		ID:      uuid.New().String(),
		Action:  action,
		Payload: data,
	}, nil
}

// NewCallResult 构造响应帧
func NewCallResult(messageID string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result payload: %w", err)
	}
	return &Frame{
		Type:    CallResult,
		ID:      messageID,
		Payload: data,
	}, nil
}

// NewCallError 构造错误帧
func NewCallError(messageID, code, description string) *Frame {
	return &Frame{
		Type:             CallError,
		ID:               messageID,
		ErrorCode:        code,
		ErrorDescription: description,
	}
}
