// Package textscan extracts hashtag and mention tokens from captions and comments.
//
// Text is split on Unicode whitespace. A word starting with the marker ('#'
// for hashtags, '@' for mentions) yields a token made of the longest run of
// letters, digits, '_' and '.' directly after the marker; trailing dots are
// dropped so "@bob." and "@bob," both resolve to "bob". Hashtags are
// lower-cased, mentions keep their case. Tokens are de-duplicated in order of
// first appearance.
package textscan

import (
	"strings"
	"unicode"
)

const (
	HashtagMarker = '#'
	MentionMarker = '@'
)

// Tokens 一段文本中的话题与提及
type Tokens struct {
	Hashtags []string
	Mentions []string
}

// Scan 解析文本中的话题与提及
func Scan(text string) Tokens {
	var out Tokens
	seenTag := map[string]bool{}
	seenMention := map[string]bool{}

	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		r := []rune(word)
		if len(r) < 2 {
			continue
		}
		switch r[0] {
		case HashtagMarker:
			if tok := strings.ToLower(body(r[1:])); tok != "" && !seenTag[tok] {
				seenTag[tok] = true
				out.Hashtags = append(out.Hashtags, tok)
			}
		case MentionMarker:
			if tok := body(r[1:]); tok != "" && !seenMention[tok] {
				seenMention[tok] = true
				out.Mentions = append(out.Mentions, tok)
			}
		}
	}
	return out
}

// Hashtags 仅返回话题
func Hashtags(text string) []string { return Scan(text).Hashtags }

// Mentions 仅返回提及的用户名
func Mentions(text string) []string { return Scan(text).Mentions }

func body(r []rune) string {
	n := 0
	for n < len(r) && isTokenRune(r[n]) {
		n++
	}
	return strings.TrimRight(string(r[:n]), ".")
}

func isTokenRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.'
}
