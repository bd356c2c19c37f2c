package model

import (
	"encoding/json"
	"fmt"
)

// wireMessage is the flat on-wire shape for Message, shared by the session
// journal (as the payload of a "message" SessionEntry) and provider
// requests.
type wireMessage struct {
	Role        Role            `json:"role"`
	Content     json.RawMessage `json:"content,omitempty"`
	API         string          `json:"api,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model,omitempty"`
	Usage       *Usage          `json:"usage,omitempty"`
	StopReason  StopReason      `json:"stop_reason,omitempty"`
	Error       *string         `json:"error_message,omitempty"`
	ToolCallID  string          `json:"tool_call_id,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	IsError     bool            `json:"is_error,omitempty"`
	CustomType  string          `json:"custom_type,omitempty"`
	Display     string          `json:"display,omitempty"`
	TimestampMS int64           `json:"timestamp_ms,omitempty"`
}

// MarshalJSON renders a Message in its flat wire shape.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{TimestampMS: m.TimestampMS}
	switch m.Kind {
	case MessageUser:
		w.Role = RoleUser
		if m.UserContent.IsBlocks() {
			raw, err := json.Marshal(m.UserContent.Blocks)
			if err != nil {
				return nil, err
			}
			w.Content = raw
		} else {
			raw, err := json.Marshal(m.UserContent.Text)
			if err != nil {
				return nil, err
			}
			w.Content = raw
		}
	case MessageAssistant:
		w.Role = RoleAssistant
		if m.Assistant == nil {
			return nil, fmt.Errorf("model: assistant message missing payload")
		}
		raw, err := json.Marshal(m.Assistant.Content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
		w.API = m.Assistant.API
		w.Provider = m.Assistant.Provider
		w.Model = m.Assistant.Model
		usage := m.Assistant.Usage
		w.Usage = &usage
		w.StopReason = m.Assistant.StopReason
		w.Error = m.Assistant.ErrorMessage
		w.TimestampMS = m.Assistant.TimestampMS
	case MessageToolResult:
		w.Role = RoleTool
		raw, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
		w.ToolCallID = m.ToolCallID
		w.ToolName = m.ToolName
		w.Details = m.Details
		w.IsError = m.IsError
	case MessageCustom:
		w.Role = RoleCustom
		raw, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
		w.CustomType = m.CustomType
		w.Display = m.Display
		w.Details = m.Details
	default:
		return nil, fmt.Errorf("model: unknown message kind %q", m.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses a Message from its flat wire shape.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.TimestampMS = w.TimestampMS
	switch w.Role {
	case RoleUser, "":
		var asText string
		if len(w.Content) > 0 && json.Unmarshal(w.Content, &asText) == nil {
			m.Kind = MessageUser
			m.UserContent = UserContent{Text: asText}
			return nil
		}
		var blocks []ContentBlock
		if len(w.Content) > 0 {
			if err := json.Unmarshal(w.Content, &blocks); err != nil {
				return fmt.Errorf("model: parse user content: %w", err)
			}
		}
		m.Kind = MessageUser
		m.UserContent = UserContent{Blocks: blocks}
	case RoleAssistant:
		var blocks []ContentBlock
		if len(w.Content) > 0 {
			if err := json.Unmarshal(w.Content, &blocks); err != nil {
				return fmt.Errorf("model: parse assistant content: %w", err)
			}
		}
		var usage Usage
		if w.Usage != nil {
			usage = *w.Usage
		}
		m.Kind = MessageAssistant
		m.Assistant = &AssistantMessage{
			Content:      blocks,
			API:          w.API,
			Provider:     w.Provider,
			Model:        w.Model,
			Usage:        usage,
			StopReason:   w.StopReason,
			ErrorMessage: w.Error,
			TimestampMS:  w.TimestampMS,
		}
	case RoleTool:
		var blocks []ContentBlock
		if len(w.Content) > 0 {
			if err := json.Unmarshal(w.Content, &blocks); err != nil {
				return fmt.Errorf("model: parse tool result content: %w", err)
			}
		}
		m.Kind = MessageToolResult
		m.ToolCallID = w.ToolCallID
		m.ToolName = w.ToolName
		m.Content = blocks
		m.Details = w.Details
		m.IsError = w.IsError
	case RoleCustom:
		var blocks []ContentBlock
		if len(w.Content) > 0 {
			if err := json.Unmarshal(w.Content, &blocks); err != nil {
				return fmt.Errorf("model: parse custom content: %w", err)
			}
		}
		m.Kind = MessageCustom
		m.Content = blocks
		m.CustomType = w.CustomType
		m.Display = w.Display
		m.Details = w.Details
	default:
		return fmt.Errorf("model: unknown message role %q", w.Role)
	}
	return nil
}
