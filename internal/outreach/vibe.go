package outreach

import (
	"regexp"
	"strings"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

var (
	urgentCues = []string{
		"urgent", "asap", "immediately", "crisis", "desperate", "losing money",
		"deadline", "emergency", "right now", "can't keep", "cannot keep",
	}
	exploringCues = []string{
		"exploring", "thinking about", "considering", "curious", "wondering",
		"looking into", "any recommendations", "what do you use", "what tools",
		"has anyone", "how do you",
	}
	informalCues = []string{
		"lol", "haha", "tbh", "gonna", "wanna", "hey", "btw", "imo", "ngl",
		"kinda", "yeah", ":)", ":(",
	}
	wordRe = regexp.MustCompile(`[\p{L}\p{N}']+|:\)|:\(`)
)

// casualMaxWords is the length below which a post reads as casual.
const casualMaxWords = 25

// VibeOf classifies the tone of content. Checks run in a fixed order so the
// same text always gets the same profile: urgent, exploring, casual, formal.
func VibeOf(content string) model.VibeProfile {
	lower := strings.ToLower(content)
	words := wordRe.FindAllString(lower, -1)

	if containsAny(lower, urgentCues) || strings.Count(content, "!") >= 3 {
		return model.VibeUrgent
	}

	questions := strings.Count(content, "?")
	sentences := max(1, strings.Count(content, ".")+strings.Count(content, "!")+questions)
	if containsAny(lower, exploringCues) || (questions >= 2 && questions*2 >= sentences) {
		return model.VibeExploring
	}

	if len(words) < casualMaxWords || hasWord(words, informalCues) {
		return model.VibeCasual
	}
	return model.VibeFormal
}

func containsAny(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func hasWord(words, cues []string) bool {
	for _, w := range words {
		for _, c := range cues {
			if w == c {
				return true
			}
		}
	}
	return false
}
