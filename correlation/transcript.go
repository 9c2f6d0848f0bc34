package correlation

import "strings"

// Speaker identifies who said a transcript line.
type Speaker int

const (
	SpeakerUnknown Speaker = iota
	SpeakerAssistant
	SpeakerUser
)

var speakerTags = map[string]Speaker{
	"ai":        SpeakerAssistant,
	"assistant": SpeakerAssistant,
	"bot":       SpeakerAssistant,
	"user":      SpeakerUser,
	"customer":  SpeakerUser,
}

// ParseLine splits "Tag: text" into its speaker and trimmed text. Lines
// without a known tag are SpeakerUnknown.
func ParseLine(line string) (Speaker, string) {
	tag, text, ok := strings.Cut(line, ":")
	if !ok {
		return SpeakerUnknown, strings.TrimSpace(line)
	}
	sp, known := speakerTags[strings.ToLower(strings.TrimSpace(tag))]
	if !known {
		return SpeakerUnknown, strings.TrimSpace(line)
	}
	return sp, strings.TrimSpace(text)
}

// Exchange is the first question the assistant asked and the prospect's
// latest reply to it.
type Exchange struct {
	Question string
	Answer   string
}

// Complete reports whether both halves were captured.
func (e Exchange) Complete() bool {
	return e.Question != "" && e.Answer != ""
}

// Apply folds a running transcript into the exchange. The first assistant
// line becomes the question and is never replaced; every user line after it
// overwrites the answer. Applying the same transcript twice is a no-op.
func (e *Exchange) Apply(transcript string) {
	asked := false
	for _, line := range strings.Split(transcript, "\n") {
		sp, text := ParseLine(line)
		if text == "" {
			continue
		}
		switch sp {
		case SpeakerAssistant:
			if !asked {
				asked = true
				if e.Question == "" {
					e.Question = text
				}
			}
		case SpeakerUser:
			if asked && e.Question != "" {
				e.Answer = text
			}
		}
	}
}
