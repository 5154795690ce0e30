// Package intent decides which handler answers a caller turn. Rules are
// evaluated in a fixed order and the first match wins; there is no scoring.
package intent

import (
	"regexp"
	"strings"

	"yuzu/receptionist/internal/types"
)

type HandlerID string

const (
	Exit       HandlerID = "exit"
	Step       HandlerID = "step"
	Origin     HandlerID = "origin"
	SMSConfirm HandlerID = "sms_confirm"
	Name       HandlerID = "name"
	NoInput    HandlerID = "no_input"
	Directions HandlerID = "directions"
	Hours      HandlerID = "hours"
	Address    HandlerID = "address"
	Phone      HandlerID = "phone"
	Landmarks  HandlerID = "landmarks"
	Fallback   HandlerID = "language_model"
)

// Rule pairs a predicate over (mode, lowercased utterance) with the handler
// that runs when it matches.
type Rule struct {
	Handler HandlerID
	Match   func(mode types.Mode, text string) bool
}

var exitPhrases = []string{
	"bye",
	"goodbye",
	"that's all",
	"that is all",
	"hang up",
	"hangup",
	"thank you, bye",
	"nothing else",
}

var (
	directionsRe = regexp.MustCompile(`\b(directions?|how (do|can|would) i (get|find) (there|to you|you)|where are (y'?all|you guys|you) at|navigate|route to you)\b`)
	hoursRe      = regexp.MustCompile(`\b(hours|open|opening|closing|closed|what time|when do you close)\b`)
	addressRe    = regexp.MustCompile(`\b(address|location|located|where are you|where is the (store|shop))\b`)
	phoneRe      = regexp.MustCompile(`\b(phone|number|call you|telephone)\b`)
	landmarksRe  = regexp.MustCompile(`\b(landmarks?|nearby|near you|next to|across from|close to|cross streets?)\b`)
)

func containsAny(s string, subs ...string) bool {
	for _, v := range subs {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

func inMode(m types.Mode) func(types.Mode, string) bool {
	return func(mode types.Mode, _ string) bool { return mode == m }
}

func matches(re *regexp.Regexp) func(types.Mode, string) bool {
	return func(_ types.Mode, text string) bool { return re.MatchString(text) }
}

var rules = []Rule{
	{Exit, func(_ types.Mode, text string) bool { return containsAny(text, exitPhrases...) }},
	// Silence never advances a flow; it re-prompts for the current mode.
	{NoInput, func(_ types.Mode, text string) bool { return text == "" }},
	{Step, inMode(types.ModeDeliveringSteps)},
	{Origin, inMode(types.ModeAwaitingOrigin)},
	{SMSConfirm, inMode(types.ModeOfferingSMS)},
	{Name, inMode(types.ModeAwaitingName)},
	{Directions, func(mode types.Mode, text string) bool {
		return mode == types.ModeNormal && directionsRe.MatchString(text)
	}},
	{Hours, matches(hoursRe)},
	{Address, matches(addressRe)},
	{Phone, matches(phoneRe)},
	{Landmarks, matches(landmarksRe)},
}

// Rules returns the ordered rule list, fallback excluded.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Resolve returns the handler for an utterance in the given mode.
func Resolve(mode types.Mode, utterance string) HandlerID {
	text := strings.ToLower(strings.TrimSpace(utterance))
	for _, r := range rules {
		if r.Match(mode, text) {
			return r.Handler
		}
	}
	return Fallback
}
