package tools

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/pkg/llmutils"
	"github.com/effective-security/librarian/pkg/schema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DecodeInput decodes the JSON arguments of a tool call into I.
//
// Text around the JSON object is ignored, empty input is an empty object.
// Required properties of s must be present and not null, integer properties
// accept numbers without a fraction or numeric strings in the int range,
// and absent or null properties get their declared defaults. All failures are marked with ErrBadArguments.
func DecodeInput[I any](input string, s *schema.Schema) (*I, error) {
	data := bytes.TrimSpace(llmutils.CleanJSON([]byte(strings.TrimSpace(input))))
	if len(data) == 0 {
		data = []byte("{}")
	}
	if !gjson.ValidBytes(data) {
		return nil, badArguments("arguments must be a JSON object")
	}
	args := gjson.ParseBytes(data)
	if !args.IsObject() {
		return nil, badArguments("arguments must be a JSON object")
	}

	var missing []string
	for _, name := range s.Required() {
		if v := args.Get(gjson.Escape(name)); !v.Exists() || v.Type == gjson.Null {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, badArguments("missing required arguments: %s", strings.Join(missing, ", "))
	}

	if props := s.Parameters.Properties; props != nil {
		for pair := props.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Value == nil || pair.Value.Type != "integer" {
				continue
			}
			v := args.Get(gjson.Escape(pair.Key))
			if v.Exists() && v.Type != gjson.Null && !isInteger(v) {
				return nil, badArguments("argument %s must be an integer, got %s", pair.Key, v.Raw)
			}
		}
	}

	var err error
	for pair := s.Defaults().Oldest(); pair != nil; pair = pair.Next() {
		if v := args.Get(gjson.Escape(pair.Key)); v.Exists() && v.Type != gjson.Null {
			continue
		}
		raw, merr := json.Marshal(pair.Value)
		if merr != nil {
			return nil, errors.WithStack(merr)
		}
		data, err = sjson.SetRawBytes(data, pair.Key, raw)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	var req I
	if err = ljson.Unmarshal(data, &req); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid arguments"), ErrBadArguments)
	}
	return &req, nil
}

const (
	minInt          = float64(math.MinInt)
	maxIntExclusive = -float64(math.MinInt)
)

func isInteger(v gjson.Result) bool {
	switch v.Type {
	case gjson.Number:
		if _, err := strconv.Atoi(v.Raw); err == nil {
			return true
		}
		// 4.0 or 1e3
		return v.Num == math.Trunc(v.Num) && v.Num >= minInt && v.Num < maxIntExclusive
	case gjson.String:
		_, err := strconv.Atoi(strings.TrimSpace(v.Str))
		return err == nil
	default:
		return false
	}
}

func badArguments(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrBadArguments)
}
