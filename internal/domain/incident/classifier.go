package incident

import "strings"

// phraseRule binds a narrative phrase to the fall type it indicates.
type phraseRule struct {
	phrase   string
	fallType FallType
}

// classifierRules is scanned in order and the first matching phrase wins.
// Every unwitnessed phrase is listed before every witnessed phrase: when a
// narrative contains phrases from both sets, the unwitnessed reading is the
// safety-conservative one and must prevail.
var classifierRules = []phraseRule{
	// Unwitnessed: the subject was found after the fact, or discovery came
	// from an alarm rather than direct observation.
	{"unwitnessed", FallUnwitnessed},
	{"found resident on", FallUnwitnessed},
	{"found on the floor", FallUnwitnessed},
	{"found on floor", FallUnwitnessed},
	{"found lying", FallUnwitnessed},
	{"found sitting on the floor", FallUnwitnessed},
	{"found him on", FallUnwitnessed},
	{"found her on", FallUnwitnessed},
	{"discovered on the floor", FallUnwitnessed},
	{"heard a thud", FallUnwitnessed},
	{"heard a bang", FallUnwitnessed},
	{"heard a noise", FallUnwitnessed},
	{"sensor mat", FallUnwitnessed},
	{"sensor alarm", FallUnwitnessed},
	{"fall mat alarm", FallUnwitnessed},
	{"alarm activated", FallUnwitnessed},
	{"alarm sounded", FallUnwitnessed},
	{"call bell", FallUnwitnessed},

	// Witnessed: direct observation by staff.
	{"witnessed", FallWitnessed},
	{"observed to fall", FallWitnessed},
	{"observed resident fall", FallWitnessed},
	{"seen to fall", FallWitnessed},
	{"seen falling", FallWitnessed},
	{"staff saw", FallWitnessed},
	{"in view of staff", FallWitnessed},
	{"lowered to the floor", FallWitnessed},
	{"assisted to the floor", FallWitnessed},
	{"slid from", FallWitnessed},
}

// ClassifyFall infers how a fall was discovered. The structured witnessed
// flag is authoritative when present; otherwise the narrative is scanned
// case-insensitively against the ordered rule table. Pure function; the
// caller persists the result exactly once.
func ClassifyFall(witnessed *bool, narrative string) FallType {
	if witnessed != nil {
		if *witnessed {
			return FallWitnessed
		}
		return FallUnwitnessed
	}

	text := strings.ToLower(narrative)
	for _, rule := range classifierRules {
		if strings.Contains(text, rule.phrase) {
			return rule.fallType
		}
	}
	return FallUnknown
}
