package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// partJSON is the stored form of a content part
type partJSON struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID           string        `json:"id,omitempty"`
	ToolType     string        `json:"tool_type,omitempty"`
	FunctionCall *FunctionCall `json:"function,omitempty"`

	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Content    string `json:"content,omitempty"`
}

type messageJSON struct {
	Role  Role       `json:"role"`
	Parts []partJSON `json:"parts"`
}

// MarshalJSON implements json.Marshaler for Message
func (m Message) MarshalJSON() ([]byte, error) {
	res := messageJSON{
		Role:  m.Role,
		Parts: make([]partJSON, 0, len(m.Parts)),
	}
	for _, p := range m.Parts {
		switch typ := p.(type) {
		case TextContent:
			res.Parts = append(res.Parts, partJSON{Type: "text", Text: typ.Text})
		case ToolCall:
			res.Parts = append(res.Parts, partJSON{
				Type:         "tool_call",
				ID:           typ.ID,
				ToolType:     typ.Type,
				FunctionCall: typ.FunctionCall,
			})
		case ToolCallResponse:
			res.Parts = append(res.Parts, partJSON{
				Type:       "tool_response",
				ToolCallID: typ.ToolCallID,
				Name:       typ.Name,
				Content:    typ.Content,
			})
		default:
			return nil, errors.Newf("unsupported content part: %T", p)
		}
	}
	return json.Marshal(res)
}

// UnmarshalJSON implements json.Unmarshaler for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	var msg messageJSON
	if err := json.Unmarshal(data, &msg); err != nil {
		return errors.WithStack(err)
	}

	m.Role = msg.Role
	m.Parts = make([]ContentPart, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Type {
		case "text", "":
			m.Parts = append(m.Parts, TextContent{Text: p.Text})
		case "tool_call":
			if p.FunctionCall == nil {
				return errors.New("function field is required for tool_call type")
			}
			m.Parts = append(m.Parts, ToolCall{
				ID:           p.ID,
				Type:         p.ToolType,
				FunctionCall: p.FunctionCall,
			})
		case "tool_response":
			m.Parts = append(m.Parts, ToolCallResponse{
				ToolCallID: p.ToolCallID,
				Name:       p.Name,
				Content:    p.Content,
			})
		default:
			return errors.Newf("unknown content type: '%s'", p.Type)
		}
	}
	return nil
}
