package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	// ErrUnknownType is returned for a well-formed message with an unrecognised tag
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed is returned for payloads that are not a tagged JSON object
	ErrMalformed = errors.New("malformed message")
)

var codec = sonic.ConfigStd

// Encode serialises m with its type tag as the first field
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}

	body, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}

	tag, err := codec.Marshal(m.MessageType())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses a wire message. A bare JSON string is read as a message
// with that tag and no fields.
func Decode(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrMalformed
	}

	if data[0] == '"' {
		var tag Type
		if err := codec.Unmarshal(data, &tag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return decodeTagged(tag, []byte("{}"))
	}

	if data[0] != '{' {
		return nil, ErrMalformed
	}

	var head struct {
		Type *Type `json:"type"`
	}
	if err := codec.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return decodeTagged(*head.Type, data)
}

func decodeTagged(tag Type, data []byte) (Message, error) {
	switch tag {
	case TypeReady:
		return unmarshalInto[Ready](data)
	case TypeShow:
		var raw struct {
			Open *bool  `json:"open"`
			Mode string `json:"mode"`
		}
		if err := codec.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Show{Open: (raw.Open != nil && *raw.Open) || raw.Mode == "open"}, nil
	case TypeHide:
		return Hide{}, nil
	case TypeMode:
		return unmarshalInto[ModeChange](data)
	case TypeDimensions:
		return unmarshalInto[Dimensions](data)
	case TypeDomContext:
		return decodeDomContext(data)
	case TypeRequestDomContext:
		return RequestDomContext{}, nil
	case TypeUpdateHeadline:
		return unmarshalInto[UpdateHeadline](data)
	case TypeHeadlineUpdated:
		return unmarshalInto[HeadlineUpdated](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
}

// decodeDomContext treats a missing found field as found; only an explicit
// false reports a missing headline
func decodeDomContext(data []byte) (Message, error) {
	var raw struct {
		Selector     *string `json:"selector"`
		Text         *string `json:"text"`
		OriginalText *string `json:"originalText"`
		Found        *bool   `json:"found"`
		Path         *string `json:"path"`
		URL          *string `json:"url"`
	}
	if err := codec.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return DomContext{
		Selector:     raw.Selector,
		Text:         raw.Text,
		OriginalText: raw.OriginalText,
		Found:        raw.Found == nil || *raw.Found,
		Path:         raw.Path,
		URL:          raw.URL,
	}, nil
}

func unmarshalInto[T Message](data []byte) (Message, error) {
	var m T
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
