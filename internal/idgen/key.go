package idgen

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// stopWords are dropped from titles when deriving task keys.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "with": true, "by": true, "from": true, "as": true,
	"and": true, "or": true,
	"is": true, "are": true, "be": true,
	"this": true, "that": true, "it": true, "its": true,
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// maxKeyLength bounds derived keys; the stored column allows 128.
const maxKeyLength = 40

// TaskKey derives a stable runbook key from a task title:
// "Post open items to S/4 GL" -> "post_open_items_s_4_gl".
func TaskKey(title string) string {
	words := strings.Fields(nonAlphanumeric.ReplaceAllString(strings.ToLower(title), " "))
	if len(words) == 0 {
		return "task"
	}

	kept := make([]string, 0, len(words))
	for _, w := range words {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		kept = words[:1]
	}

	key := strings.Join(kept, "_")
	if !unicode.IsLetter(rune(key[0])) {
		key = "t" + key
	}
	if len(key) > maxKeyLength {
		cut := key[:maxKeyLength]
		if i := strings.LastIndex(cut, "_"); i > maxKeyLength/2 {
			cut = cut[:i]
		}
		key = strings.TrimRight(cut, "_")
	}
	return key
}

// UniqueTaskKey returns TaskKey(title), suffixed _2, _3, ... until taken
// reports false.
func UniqueTaskKey(title string, taken func(string) bool) string {
	base := TaskKey(title)
	key := base
	for n := 2; taken(key); n++ {
		key = base + "_" + strconv.Itoa(n)
	}
	return key
}
