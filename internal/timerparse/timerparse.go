// Package timerparse parses spoken duration phrases. Transcribed speech
// arrives as words ("two and a half minutes"), not digits, so the parser
// accepts both.
package timerparse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// wordNumbers maps spoken number words to values. "a"/"an" cover phrases
// like "a minute".
var wordNumbers = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13,
	"fourteen": 14, "fifteen": 15, "sixteen": 16, "seventeen": 17,
	"eighteen": 18, "nineteen": 19, "twenty": 20, "thirty": 30,
	"forty": 40, "fifty": 50, "sixty": 60, "ninety": 90,
	"a": 1, "an": 1,
}

var unitAliases = map[string]string{
	"second": "s", "seconds": "s", "sec": "s", "secs": "s", "s": "s",
	"minute": "m", "minutes": "m", "min": "m", "mins": "m", "m": "m",
	"hour": "h", "hours": "h", "hr": "h", "hrs": "h", "h": "h",
}

var (
	halfHourRe = regexp.MustCompile(`(?i)^half\s+(?:an?\s+)?hour`)
	durationRe = buildDurationRe()
)

// buildDurationRe compiles "<number> [and a half] <unit>" with alternatives
// sorted longest-first so "minutes" wins over "minute".
func buildDurationRe() *regexp.Regexp {
	numAlts := make([]string, 0, len(wordNumbers))
	for w := range wordNumbers {
		numAlts = append(numAlts, regexp.QuoteMeta(w))
	}
	unitAlts := make([]string, 0, len(unitAliases))
	for u := range unitAliases {
		unitAlts = append(unitAlts, regexp.QuoteMeta(u))
	}
	byLengthDesc := func(alts []string) {
		sort.Slice(alts, func(i, j int) bool {
			if len(alts[i]) != len(alts[j]) {
				return len(alts[i]) > len(alts[j])
			}
			return alts[i] < alts[j]
		})
	}
	byLengthDesc(numAlts)
	byLengthDesc(unitAlts)

	return regexp.MustCompile(
		`(?i)(\d+|` + strings.Join(numAlts, "|") + `)` +
			`(\s+and\s+a\s+half)?` +
			`\s+` +
			`(` + strings.Join(unitAlts, "|") + `)` +
			`(\s|$)`,
	)
}

// parseNumber converts a digit string or spoken number word to a value.
func parseNumber(word string) (int, bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	if n, err := strconv.Atoi(word); err == nil {
		return n, true
	}
	n, ok := wordNumbers[word]
	return n, ok
}

// matchSeconds converts one regexp match to seconds.
func matchSeconds(groups []string) (int, bool) {
	num, ok := parseNumber(groups[1])
	if !ok {
		return 0, false
	}
	unit, ok := unitAliases[strings.ToLower(groups[3])]
	if !ok {
		return 0, false
	}
	hasHalf := strings.TrimSpace(groups[2]) != ""

	switch unit {
	case "s":
		if hasHalf {
			return num + 30, true
		}
		return num, true
	case "m":
		seconds := num * 60
		if hasHalf {
			seconds += 30
		}
		return seconds, true
	case "h":
		seconds := num * 3600
		if hasHalf {
			seconds += 1800
		}
		return seconds, true
	}
	return 0, false
}

// ParseDuration extracts a duration phrase from the front of text.
// It returns total seconds and the remaining text (the timer label), or
// ok=false when no duration is present. Consecutive components accumulate:
// "1 hour 30 minutes" is 5400 seconds. When nothing matches at the front,
// the whole text is searched once so leading filler words do not break
// parsing.
func ParseDuration(text string) (seconds int, remaining string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, text, false
	}

	original := text
	total := 0
	found := false

	if loc := halfHourRe.FindStringIndex(text); loc != nil {
		total += 1800
		text = strings.TrimSpace(text[loc[1]:])
		found = true
	}

	for {
		groups := durationRe.FindStringSubmatch(text)
		if groups == nil || !strings.HasPrefix(text, groups[0]) {
			break
		}
		add, matched := matchSeconds(groups)
		if !matched {
			break
		}
		total += add
		text = strings.TrimSpace(text[len(groups[0]):])
		found = true
	}

	if !found {
		loc := durationRe.FindStringSubmatchIndex(original)
		if loc != nil {
			groups := expandGroups(original, loc)
			if add, matched := matchSeconds(groups); matched {
				total += add
				text = strings.TrimSpace(original[loc[1]:])
				found = true
			}
		}
	}

	if !found {
		return 0, original, false
	}
	return total, text, true
}

// expandGroups materializes submatch strings from a FindStringSubmatchIndex result.
func expandGroups(text string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		start, end := loc[2*i], loc[2*i+1]
		if start >= 0 {
			groups[i] = text[start:end]
		}
	}
	return groups
}

// FormatHuman renders seconds as "1 hour 30 minutes".
func FormatHuman(seconds int) string {
	var parts []string
	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	if seconds >= 3600 {
		parts = append(parts, plural(seconds/3600, "hour"))
		seconds %= 3600
	}
	if seconds >= 60 {
		parts = append(parts, plural(seconds/60, "minute"))
		seconds %= 60
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}
	return strings.Join(parts, " ")
}

// FormatSystemd renders seconds in systemd OnActiveSec form, e.g. "1h30m".
func FormatSystemd(seconds int) string {
	var b strings.Builder
	if seconds >= 3600 {
		fmt.Fprintf(&b, "%dh", seconds/3600)
		seconds %= 3600
	}
	if seconds >= 60 {
		fmt.Fprintf(&b, "%dm", seconds/60)
		seconds %= 60
	}
	if seconds > 0 {
		fmt.Fprintf(&b, "%ds", seconds)
	}
	if b.Len() == 0 {
		return "0s"
	}
	return b.String()
}
