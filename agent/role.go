package agent

import (
	"fmt"
	"strings"
)

// Template slot names.
const (
	SlotTopic   = "topic"
	SlotHistory = "history"
	SlotInput   = "input"
)

// TemplateError reports a prompt template that cannot be resolved.
type TemplateError struct {
	Role   string
	Reason string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template for role %q: %s", e.Role, e.Reason)
}

type segment struct {
	text string
	slot string // empty for literal text
}

// Role is the static identity and prompt template of one participant.
// The template is parsed once, with the topic folded in as literal text, so nothing in the topic
// is ever interpreted as a slot.
type Role struct {
	Name     string
	Tag      string
	segments []segment
}

// NewRole parses template and binds topic. Slots are {topic}, {history} and {input};
// {{ and }} produce literal braces. {history} and {input} must each appear exactly once.
func NewRole(name, tag, template, topic string) (Role, error) {
	segments, err := parseTemplate(template)
	if err != nil {
		return Role{}, &TemplateError{Role: name, Reason: err.Error()}
	}

	seen := make(map[string]int)
	for _, s := range segments {
		if s.slot != "" {
			seen[s.slot]++
		}
	}
	for _, slot := range []string{SlotHistory, SlotInput} {
		if seen[slot] == 0 {
			return Role{}, &TemplateError{Role: name, Reason: fmt.Sprintf("missing {%s} slot", slot)}
		}
	}
	for slot, n := range seen {
		if n > 1 {
			return Role{}, &TemplateError{Role: name, Reason: fmt.Sprintf("slot {%s} appears %d times", slot, n)}
		}
	}
	if seen[SlotTopic] > 0 && topic == "" {
		return Role{}, &TemplateError{Role: name, Reason: "template uses {topic} but no topic was given"}
	}

	bound := make([]segment, 0, len(segments))
	for _, s := range segments {
		if s.slot == SlotTopic {
			s = segment{text: topic}
		}
		// merge adjacent literals so Resolve walks fewer segments
		if s.slot == "" && len(bound) > 0 && bound[len(bound)-1].slot == "" {
			bound[len(bound)-1].text += s.text
			continue
		}
		bound = append(bound, s)
	}

	return Role{Name: name, Tag: tag, segments: bound}, nil
}

// Resolve fills {history} and {input} in one pass. Substituted values are copied verbatim.
func (r Role) Resolve(history, input string) string {
	var b strings.Builder
	for _, s := range r.segments {
		switch s.slot {
		case SlotHistory:
			b.WriteString(history)
		case SlotInput:
			b.WriteString(input)
		default:
			b.WriteString(s.text)
		}
	}
	return b.String()
}

func parseTemplate(template string) ([]segment, error) {
	var (
		segments []segment
		literal  strings.Builder
	)
	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, segment{text: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				literal.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed '{' at offset %d", i)
			}
			name := template[i+1 : i+1+end]
			switch name {
			case SlotTopic, SlotHistory, SlotInput:
			default:
				return nil, fmt.Errorf("unknown slot {%s} at offset %d", name, i)
			}
			flush()
			segments = append(segments, segment{slot: name})
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				literal.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("single '}' at offset %d", i)
		default:
			literal.WriteByte(c)
		}
	}
	flush()
	return segments, nil
}
