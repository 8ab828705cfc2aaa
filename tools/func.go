package tools

import (
	"context"
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/pkg/llmutils"
	"github.com/effective-security/librarian/pkg/schema"
)

// FailureFunc renders an expected failure of Run as the tool output.
// It returns false when the error is not expected,
// the error is then returned by Call.
type FailureFunc[I any] func(req *I, err error) (string, bool)

// Func is a Tool backed by a typed function.
// Call renders the output with its String method when O implements fmt.Stringer,
// and as JSON otherwise.
type Func[I any, O any] struct {
	name        string
	description string
	schema      *schema.Schema
	run         func(context.Context, *I) (*O, error)
	onFailure   FailureFunc[I]
}

// NewFunc returns a tool named name, with arguments reflected from I.
func NewFunc[I any, O any](name, description string, run func(context.Context, *I) (*O, error)) (*Func[I, O], error) {
	sc, err := schema.New(reflect.TypeFor[I]())
	if err != nil {
		return nil, errors.WithMessagef(err, "tool %s", name)
	}
	return &Func[I, O]{
		name:        name,
		description: description,
		schema:      sc,
		run:         run,
	}, nil
}

// MustFunc is like NewFunc but panics on error.
func MustFunc[I any, O any](name, description string, run func(context.Context, *I) (*O, error)) *Func[I, O] {
	f, err := NewFunc(name, description, run)
	if err != nil {
		panic(err)
	}
	return f
}

// WithFailure sets the renderer of expected failures.
func (f *Func[I, O]) WithFailure(fn FailureFunc[I]) *Func[I, O] {
	f.onFailure = fn
	return f
}

func (f *Func[I, O]) Name() string {
	return f.name
}

func (f *Func[I, O]) Description() string {
	return f.description
}

func (f *Func[I, O]) Parameters() any {
	return f.schema.Parameters
}

// Schema returns the reflected schema of the arguments.
func (f *Func[I, O]) Schema() *schema.Schema {
	return f.schema
}

func (f *Func[I, O]) Run(ctx context.Context, req *I) (*O, error) {
	return f.run(ctx, req)
}

func (f *Func[I, O]) Call(ctx context.Context, input string) (string, error) {
	req, err := DecodeInput[I](input, f.schema)
	if err != nil {
		return "", err
	}
	out, err := f.Run(ctx, req)
	if err != nil {
		if f.onFailure != nil {
			if msg, ok := f.onFailure(req, err); ok {
				return msg, nil
			}
		}
		return "", err
	}
	if s, ok := any(out).(fmt.Stringer); ok {
		return s.String(), nil
	}
	return llmutils.ToJSON(out), nil
}
