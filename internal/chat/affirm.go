package chat

import (
	"strings"
	"unicode"
)

var affirmatives = map[string]struct{}{
	"yes": {}, "y": {}, "yep": {}, "yeah": {}, "yea": {}, "ya": {},
	"yes please": {}, "yes confirm": {}, "confirm": {}, "confirmed": {},
	"ok": {}, "okay": {}, "k": {}, "sure": {}, "go ahead": {},
	"looks good": {}, "look good": {}, "lgtm": {}, "correct": {},
	"thats correct": {}, "thats right": {}, "right": {}, "perfect": {},
	"approve": {}, "approved": {}, "send it": {}, "finalize": {},
	"finalise": {}, "finalize it": {}, "finalise it": {}, "done": {},
	"👍": {},
}

var retryRequests = map[string]struct{}{
	"retry": {}, "please retry": {}, "retry save": {}, "retry saving": {},
	"try again": {}, "please try again": {}, "try again please": {},
	"save": {}, "save it": {}, "save again": {}, "save it again": {},
	"please save": {}, "please save it": {}, "please save it again": {},
	"try saving again": {}, "please try saving again": {}, "try saving it again": {},
}

// isRetryRequest reports whether the whole message asks to save again.
// A plain yes counts.
func isRetryRequest(text string) bool {
	if isAffirmative(text) {
		return true
	}
	_, ok := retryRequests[normalizeReply(text)]
	return ok
}

// isAffirmative reports whether the whole message is an explicit yes.
// "yes but change the amount" is not.
func isAffirmative(text string) bool {
	_, ok := affirmatives[normalizeReply(text)]
	return ok
}

// normalizeReply lower-cases text, drops punctuation and collapses spaces
func normalizeReply(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsPunct(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
