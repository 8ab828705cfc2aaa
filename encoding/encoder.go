package encoding

import (
	"strings"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/librarian/encoding/json"
	tomlenc "github.com/effective-security/librarian/encoding/toml"
	yamlenc "github.com/effective-security/librarian/encoding/yaml"
)

// SchemaEncoder encodes values and decodes model or user provided text.
type SchemaEncoder interface {
	Marshal(req any) ([]byte, error)
	Unmarshal([]byte, any) error
	// GetFormatInstructions returns the wrapped message with message schema for the prompt
	GetFormatInstructions() string
}

type Validator interface {
	Validate(any) error
}

type Mode = string

const (
	ModeJSON Mode = "json"
	ModeYAML Mode = "yaml"
	ModeTOML Mode = "toml"
)

// ModeDefault is the mode used when none is requested.
var ModeDefault = ModeJSON

// ErrUnsupportedMode is returned for an unknown encoding mode.
var ErrUnsupportedMode = errors.New("unsupported encoding")

// ParseMode returns the mode by name, case insensitive.
// Empty name returns ModeDefault.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return ModeDefault, nil
	case ModeJSON:
		return ModeJSON, nil
	case ModeYAML, "yml":
		return ModeYAML, nil
	case ModeTOML:
		return ModeTOML, nil
	default:
		return "", errors.WithMessagef(ErrUnsupportedMode, "%q", name)
	}
}

// ContentType returns the HTTP content type of the mode.
func ContentType(mode Mode) string {
	switch mode {
	case ModeYAML:
		return "application/yaml"
	case ModeTOML:
		return "application/toml"
	default:
		return "application/json"
	}
}

// PredefinedSchemaEncoder returns the encoder of the mode for the type of req.
func PredefinedSchemaEncoder(mode Mode, req any) (SchemaEncoder, error) {
	switch mode {
	case ModeJSON:
		return jsonenc.NewEncoder(req)
	case ModeYAML:
		return yamlenc.NewEncoder(req), nil
	case ModeTOML:
		return tomlenc.NewEncoder(req), nil
	default:
		return nil, errors.WithMessagef(ErrUnsupportedMode, "%q", mode)
	}
}

// Marshal encodes v in the mode.
func Marshal(mode Mode, v any) ([]byte, error) {
	enc, err := PredefinedSchemaEncoder(mode, v)
	if err != nil {
		return nil, err
	}
	bs, err := enc.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", mode)
	}
	return bs, nil
}

// Unmarshal decodes bs in the mode into v,
// and validates the result when v has `validate` tags.
func Unmarshal(mode Mode, bs []byte, v any) error {
	enc, err := PredefinedSchemaEncoder(mode, v)
	if err != nil {
		return err
	}
	if err = enc.Unmarshal(bs, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", mode)
	}
	if validator, ok := enc.(Validator); ok {
		if err := validator.Validate(v); err != nil {
			return errors.Wrap(err, "failed to validate")
		}
	}
	return nil
}

var (
	_ SchemaEncoder = (*jsonenc.Encoder)(nil)
	_ SchemaEncoder = (*tomlenc.Encoder)(nil)
	_ SchemaEncoder = (*yamlenc.Encoder)(nil)

	_ Validator = (*jsonenc.Encoder)(nil)
	_ Validator = (*tomlenc.Encoder)(nil)
	_ Validator = (*yamlenc.Encoder)(nil)
)
