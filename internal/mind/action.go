package mind

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Kind string

const (
	KindMove  Kind = "MOVE"
	KindTalk  Kind = "TALK"
	KindRead  Kind = "READ"
	KindWrite Kind = "WRITE"
	KindWait  Kind = "WAIT"
)

// aliases maps the verbose action names some prompts produce onto Kinds.
var aliases = map[string]Kind{
	"READ_WIKI":  KindRead,
	"WRITE_WIKI": KindWrite,
	"SAY":        KindTalk,
	"IDLE":       KindWait,
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Action is one decision. Which fields are set depends on Kind.
type Action struct {
	Kind          Kind   `json:"action"`
	Target        *Point `json:"target,omitempty"`
	TargetAgentID string `json:"targetAgentId,omitempty"`
	Content       string `json:"content,omitempty"`
	Query         string `json:"query,omitempty"`
	Slug          string `json:"slug,omitempty"`
	Title         string `json:"title,omitempty"`
	Category      string `json:"category,omitempty"`
	Reason        string `json:"reason,omitempty"`

	// Fallback marks actions produced by the local policy instead of a model.
	Fallback bool `json:"-"`
}

func Wait(reason string) Action { return Action{Kind: KindWait, Reason: reason} }

var ErrInvalidAction = errors.New("invalid action")

//go:embed action.schema.json
var actionSchemaJSON string

var actionSchema = jsonschema.MustCompileString("action.schema.json", actionSchemaJSON)

// ParseAction decodes a model reply into an Action. It tolerates code fences and
// malformed JSON that jsonrepair can fix, then validates against the action schema.
func ParseAction(reply string) (Action, error) {
	raw := stripFences(reply)
	if raw == "" {
		return Action{}, fmt.Errorf("%w: empty reply", ErrInvalidAction)
	}

	var doc map[string]any
	if err := unmarshalJSON([]byte(raw), &doc); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if doc == nil {
		return Action{}, fmt.Errorf("%w: not an object", ErrInvalidAction)
	}
	if name, ok := doc["action"].(string); ok {
		doc["action"] = string(normalizeKind(name))
	}
	for _, k := range []string{"content", "query", "title"} {
		if v, ok := doc[k].(string); ok {
			doc[k] = strings.TrimSpace(v)
		}
	}
	if doc["action"] == string(KindWrite) {
		slug, _ := doc["slug"].(string)
		if slug == "" {
			slug, _ = doc["title"].(string)
		}
		if slug = Slugify(slug); slug != "" {
			doc["slug"] = slug
		}
	}
	if err := actionSchema.Validate(doc); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return Action{}, err
	}
	var a Action
	if err := json.Unmarshal(b, &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return a, nil
}

// Slugify lowercases s and folds every run of other characters into one hyphen.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 96 {
		out = strings.TrimSuffix(out[:96], "-")
	}
	return out
}

func normalizeKind(name string) Kind {
	n := strings.ToUpper(strings.TrimSpace(name))
	if k, ok := aliases[n]; ok {
		return k
	}
	return Kind(n)
}

func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
