package inbound

import (
	"encoding/json"
	"strings"
)

// Field is a canonical event field resolved through aliases.
type Field string

const (
	FieldConversationID Field = "conversation_id"
	FieldText           Field = "text"
)

// Alias maps a canonical field to one candidate key path. A path matches
// either the bracket key of a form body ("data[PARAMS][DIALOG_ID]") or the
// nested object path of a JSON body.
type Alias struct {
	Field Field
	Path  []string
}

// BracketKey renders the path in form-encoding notation.
func (a Alias) BracketKey() string {
	if len(a.Path) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(a.Path[0])
	for _, seg := range a.Path[1:] {
		b.WriteByte('[')
		b.WriteString(seg)
		b.WriteByte(']')
	}
	return b.String()
}

// DefaultAliases lists candidate paths per field in priority order.
var DefaultAliases = []Alias{
	{Field: FieldConversationID, Path: []string{"data", "PARAMS", "DIALOG_ID"}},
	{Field: FieldConversationID, Path: []string{"data", "DIALOG_ID"}},
	{Field: FieldConversationID, Path: []string{"DIALOG_ID"}},
	{Field: FieldConversationID, Path: []string{"data", "PARAMS", "CHAT_ID"}},
	{Field: FieldConversationID, Path: []string{"CHAT_ID"}},
	{Field: FieldText, Path: []string{"data", "PARAMS", "MESSAGE"}},
	{Field: FieldText, Path: []string{"data", "MESSAGE"}},
	{Field: FieldText, Path: []string{"MESSAGE"}},
}

// Resolve returns the value of the first alias for field with a non-empty
// value, in table order.
func Resolve(p Payload, aliases []Alias, field Field) string {
	for _, alias := range aliases {
		if alias.Field != field {
			continue
		}
		if s := strings.TrimSpace(p.valueAt(alias)); s != "" {
			return s
		}
	}
	return ""
}

func (p Payload) valueAt(alias Alias) string {
	if len(alias.Path) == 0 {
		return ""
	}
	if s := stringValue(p[alias.BracketKey()]); s != "" {
		return s
	}
	return stringValue(nested(p, alias.Path))
}

// nested walks a decoded JSON object along path.
func nested(p Payload, path []string) any {
	var cur any = map[string]any(p)
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	switch cur.(type) {
	case string, json.Number, bool, []string, []any:
		return cur
	}
	return nil
}
