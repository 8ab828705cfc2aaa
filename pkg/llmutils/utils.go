package llmutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// CleanJSON returns JSON by trimming prefixes and postfixes,
// this is more useful than BytesTrimBackticks,
// as LLM can reply like,
// `Here you go: {json}`
func CleanJSON(bs []byte) []byte {
	return trimPostfixAfterJSON(trimPrefixBeforeJSON(bs))
}

// Removes any prefixes before the JSON (like "Sure, here you go:")
func trimPrefixBeforeJSON(bs []byte) []byte {
	startObject := bytes.IndexByte(bs, '{')
	startArray := bytes.IndexByte(bs, '[')

	var start int
	switch {
	case startObject == -1 && startArray == -1:
		return bs
	case startObject == -1:
		start = startArray
	case startArray == -1:
		start = startObject
	default:
		start = min(startObject, startArray)
	}
	return bs[start:]
}

// Removes any postfixes after the JSON
func trimPostfixAfterJSON(bs []byte) []byte {
	endObject := bytes.LastIndexByte(bs, '}')
	endArray := bytes.LastIndexByte(bs, ']')

	var end int
	switch {
	case endObject == -1 && endArray == -1:
		return bs
	case endObject == -1:
		end = endArray
	case endArray == -1:
		end = endObject
	default:
		end = max(endObject, endArray)
	}
	return bs[:end+1]
}

var backtick = []byte("```")

// BytesTrimBackticks removes ```json or ```
func BytesTrimBackticks(bs []byte) []byte {
	startIndex := bytes.Index(bs, backtick)
	if startIndex == -1 {
		return bs
	}
	startIndex += len(backtick)
	// skip the language tag up to the end of line
	for i := startIndex; i < len(bs) && bs[i] != '{' && bs[i] != '['; i++ {
		if bs[i] == '\n' {
			startIndex = i + 1
			break
		}
	}

	content := bs[startIndex:]
	endIndex := bytes.LastIndex(content, backtick)
	if endIndex == -1 {
		return content
	}
	return bytes.TrimSpace(content[:endIndex])
}

// StripComments removes the first <!--  --> comment from the LLM output
func StripComments(text string) string {
	before, after, ok := strings.Cut(text, "<!--")
	if ok {
		_, after2, ok := strings.Cut(after, "-->")
		if ok {
			if len(after2) > 1 && after2[0] == '\n' {
				after2 = after2[1:]
			}
			return before + after2
		}
	}
	return text
}

// RemoveAllComments removes all <!--  --> comments from the LLM output
func RemoveAllComments(input string) string {
	result := input
	for {
		cleaned := StripComments(result)
		if cleaned == result {
			return cleaned
		}
		result = cleaned
	}
}

func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

func ToYAML(val any) string {
	js, _ := yaml.Marshal(val)
	return string(js)
}

func BackticksJSON(js string) string {
	return "\n```json\n" + strings.TrimSpace(js) + "\n```\n"
}

func BackticksYAML(js string) string {
	return "\n```yaml\n" + strings.TrimSpace(js) + "\n```\n"
}

// EnsureEndsWithNewline ensures the message ends with a newline,
// it also removes any extra leading and trailing spaces.
func EnsureEndsWithNewline(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return s + "\n"
}

// CountTokens returns the token usage reported in GenerationInfo.
func CountTokens(resp *llms.ContentResponse) (in, out int64) {
	if resp == nil {
		return
	}
	for _, choice := range resp.Choices {
		ma := values.MapAny(choice.GenerationInfo)
		in += ma.Int64("InputTokens")
		out += ma.Int64("OutputTokens")
	}
	return
}

// CountMessagesContentSize counts the size of the content in the messages
func CountMessagesContentSize(msgs []llms.Message) uint64 {
	var size uint64
	for _, mc := range msgs {
		size += uint64(len(mc.Role))
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				size += uint64(len(pp.Text))
			case llms.ToolCall:
				size += uint64(len(pp.ID) + len(pp.Type))
				if pp.FunctionCall != nil {
					size += uint64(len(pp.FunctionCall.Name) + len(pp.FunctionCall.Arguments))
				}
			case llms.ToolCallResponse:
				size += uint64(len(pp.ToolCallID) + len(pp.Name) + len(pp.Content))
			}
		}
	}
	return size
}

// PrintMessages is a debugging helper for chat history.
func PrintMessages(w io.Writer, msgs []llms.Message) {
	for _, mc := range msgs {
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				fmt.Fprintf(w, "%s: %s\n", strings.ToUpper(string(mc.Role)), pp.Text)
			case llms.ToolCall:
				if pp.FunctionCall != nil {
					fmt.Fprintf(w, "%s: call %s(%s) id=%s\n", strings.ToUpper(string(mc.Role)), pp.FunctionCall.Name, pp.FunctionCall.Arguments, pp.ID)
				}
			case llms.ToolCallResponse:
				fmt.Fprintf(w, "%s: %s id=%s: %s\n", strings.ToUpper(string(mc.Role)), pp.Name, pp.ToolCallID, pp.Content)
			}
		}
	}
}

// FindLastUserQuestion returns the text of the last human message.
func FindLastUserQuestion(messages []llms.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role == llms.RoleHuman {
			for _, part := range msg.Parts {
				if textPart, ok := part.(llms.TextContent); ok {
					return textPart.Text
				}
			}
		}
	}
	return ""
}

var (
	toolNameKeys = []string{"tool", "name", "function"}
	toolArgsKeys = []string{"arguments", "args", "parameters", "input"}
)

// ParseToolCalls extracts tool calls embedded as JSON in free-form model text.
// A call is an object with the tool name in "tool", "name" or "function"
// and the arguments in "arguments", "args", "parameters" or "input".
// The text may hold a single object, an array of objects,
// or an object with a "tool_calls" array.
// Returns nil when the text has no tool call.
func ParseToolCalls(text string) []llms.ToolCall {
	js := CleanJSON(BytesTrimBackticks([]byte(text)))
	if !gjson.ValidBytes(js) {
		return nil
	}

	res := gjson.ParseBytes(js)
	if calls := res.Get("tool_calls"); calls.IsArray() {
		res = calls
	}

	var items []gjson.Result
	if res.IsArray() {
		items = res.Array()
	} else if res.IsObject() {
		items = []gjson.Result{res}
	}

	var calls []llms.ToolCall
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		name := firstString(item, toolNameKeys)
		if name == "" {
			continue
		}
		calls = append(calls, llms.ToolCall{
			ID:   values.StringsCoalesce(item.Get("id").String(), fmt.Sprintf("call_%d", len(calls)+1)),
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      name,
				Arguments: argumentsOf(item),
			},
		})
	}
	return calls
}

func firstString(obj gjson.Result, keys []string) string {
	for _, k := range keys {
		if v := obj.Get(k); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func argumentsOf(obj gjson.Result) string {
	for _, k := range toolArgsKeys {
		v := obj.Get(k)
		switch {
		case v.IsObject():
			return v.Raw
		case v.Type == gjson.String && gjson.Valid(v.Str):
			return v.Str
		}
	}
	return "{}"
}
