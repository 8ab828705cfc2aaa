package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/pkg/llmutils"
	"github.com/effective-security/librarian/pkg/metricskey"
	"github.com/effective-security/librarian/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/librarian", "tools")

// DefaultAliases maps alternative tool names used by models to the canonical names.
var DefaultAliases = map[string]string{
	"get_all_books":   "list_books",
	"get_books":       "list_books",
	"get_all_patrons": "list_patrons",
	"get_patrons":     "list_patrons",
}

// Definition describes a tool in the MCP tools/list format.
type Definition struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema" yaml:"-"`
}

// Registry dispatches tool calls by name.
type Registry struct {
	lock     sync.RWMutex
	tools    map[string]ITool
	order    []string
	aliases  map[string]string
	callback Callback
}

// Option configures the Registry.
type Option func(*Registry)

// WithCallback sets the handler of tool events.
func WithCallback(cb Callback) Option {
	return func(r *Registry) {
		r.callback = cb
	}
}

// WithAliases adds name aliases to DefaultAliases.
func WithAliases(aliases map[string]string) Option {
	return func(r *Registry) {
		for k, v := range aliases {
			r.aliases[k] = v
		}
	}
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:   map[string]ITool{},
		aliases: map[string]string{},
	}
	for k, v := range DefaultAliases {
		r.aliases[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds the tools, names must be unique.
func (r *Registry) Register(tools ...ITool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, t := range tools {
		name := t.Name()
		if _, ok := r.tools[name]; ok {
			return errors.Newf("tool %q already registered", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return nil
}

// Resolve returns the canonical name of the tool.
func (r *Registry) Resolve(name string) string {
	name = strings.TrimSpace(name)
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	return name
}

// Get returns the tool by name or alias.
func (r *Registry) Get(name string) (ITool, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tools[r.Resolve(name)]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []ITool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]ITool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

// Definitions returns the MCP style definitions of the tools.
func (r *Registry) Definitions() []Definition {
	var list []Definition
	for _, t := range r.Tools() {
		list = append(list, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: parametersSchema(t),
		})
	}
	return list
}

// LLMTools returns the function definitions of the tools for a chat model.
func (r *Registry) LLMTools() []llms.Tool {
	var list []llms.Tool
	for _, t := range r.Tools() {
		list = append(list, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  parametersSchema(t),
			},
		})
	}
	return list
}

// Descriptions returns the tool names and descriptions as YAML,
// to be used in a prompt.
func (r *Registry) Descriptions() string {
	return llmutils.ToYAML(r.Definitions())
}

// Dispatch calls the tool with the argument map.
// It never fails, errors are returned as text.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	return r.Call(ctx, name, llmutils.ToJSON(args))
}

// Call calls the tool with the JSON input.
// It never fails, errors are returned as text:
// "Unknown tool: <name>" or "Error executing <name>: <error>".
func (r *Registry) Call(ctx context.Context, name, input string) string {
	tool, ok := r.Get(name)
	if !ok {
		name = r.Resolve(name)
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING, "reason", "tool_not_found", "tool", name)
		if r.callback != nil {
			r.callback.OnToolNotFound(ctx, name, input)
		}
		return fmt.Sprintf("Unknown tool: %s", name)
	}

	name = tool.Name()
	defer metricskey.PerfToolCall.MeasureSince(time.Now(), name)

	if r.callback != nil {
		r.callback.OnToolStart(ctx, tool, input)
	}

	out, err := invoke(ctx, tool, input)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.DEBUG, "tool", name, "err", err.Error())
		if r.callback != nil {
			r.callback.OnToolError(ctx, tool, input, err)
		}
		return fmt.Sprintf("Error executing %s: %s", name, err.Error())
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	if r.callback != nil {
		r.callback.OnToolEnd(ctx, tool, input, out)
	}
	return out
}

func invoke(ctx context.Context, tool ITool, input string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "panic",
				"tool", tool.Name(),
				"panic", rec,
				"stack", string(debug.Stack()))
			err = errors.Newf("panic: %v", rec)
		}
	}()
	return tool.Call(ctx, input)
}

func parametersSchema(t ITool) *jsonschema.Schema {
	switch p := t.Parameters().(type) {
	case *jsonschema.Schema:
		return p
	case nil:
		return &jsonschema.Schema{Type: "object"}
	default:
		s, err := schema.FromAny(p)
		if err != nil {
			logger.KV(xlog.ERROR, "reason", "parameters", "tool", t.Name(), "err", err.Error())
			return &jsonschema.Schema{Type: "object"}
		}
		return s
	}
}
