// Package speech renders a turn result as TwiML. Every utterance is spoken
// with the configured voice, language and prosody rate.
package speech

import (
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/twiml"

	"yuzu/receptionist/internal/dialogue"
)

const ContentType = "application/xml"

type Voice struct {
	Name          string
	Language      string
	Rate          string
	SpeechTimeout string
}

type Renderer struct {
	voice   Voice
	baseURL string
}

// NewRenderer returns a renderer; baseURL, when set, prefixes callback routes.
func NewRenderer(v Voice, baseURL string) *Renderer {
	return &Renderer{voice: v, baseURL: strings.TrimRight(baseURL, "/")}
}

// prosody renders twiml.VoiceProsody under the lowercase SSML tag name.
type prosody struct {
	twiml.VoiceProsody
}

func (prosody) GetName() string { return "prosody" }

func (r *Renderer) say(text string) *twiml.VoiceSay {
	s := &twiml.VoiceSay{
		Voice:    r.voice.Name,
		Language: r.voice.Language,
	}
	if r.voice.Rate == "" {
		s.Message = text
		return s
	}
	s.InnerElements = []twiml.Element{&prosody{twiml.VoiceProsody{Words: text, Rate: r.voice.Rate}}}
	return s
}

func (r *Renderer) url(route string) string { return r.baseURL + route }

// Render converts res into a TwiML document.
func (r *Renderer) Render(res dialogue.Result) (string, error) {
	var verbs []twiml.Element

	switch res.Action.Kind {
	case dialogue.Hangup:
		for _, s := range res.Speech {
			verbs = append(verbs, r.say(s))
		}
		verbs = append(verbs, &twiml.VoiceHangup{})
	default:
		g := &twiml.VoiceGather{
			Input:         "speech",
			Action:        r.url(res.Action.Target),
			Method:        "POST",
			SpeechTimeout: r.voice.SpeechTimeout,
			Language:      r.voice.Language,
		}
		if res.Action.TimeoutSeconds > 0 {
			g.Timeout = strconv.Itoa(res.Action.TimeoutSeconds)
		}
		if len(res.Action.Hints) > 0 {
			g.Hints = strings.Join(res.Action.Hints, ",")
		}
		// Without a redirect, silence is posted to the action so the
		// controller can re-prompt.
		if res.Redirect == "" {
			g.ActionOnEmptyResult = "true"
		}
		for _, s := range res.Speech {
			g.InnerElements = append(g.InnerElements, r.say(s))
		}
		verbs = append(verbs, g)
		if res.Redirect != "" {
			if res.PauseSeconds > 0 {
				verbs = append(verbs, &twiml.VoicePause{Length: strconv.Itoa(res.PauseSeconds)})
			}
			verbs = append(verbs, &twiml.VoiceRedirect{Url: r.url(res.Redirect), Method: "POST"})
		}
	}
	return twiml.Voice(verbs)
}

// Fallback is served when rendering itself fails.
func (r *Renderer) Fallback() string {
	out, err := twiml.Voice([]twiml.Element{
		r.say("Sorry, something went wrong. Please call back in a moment."),
		&twiml.VoiceHangup{},
	})
	if err != nil {
		return `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
	}
	return out
}
