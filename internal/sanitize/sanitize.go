// Package sanitize normalizes untrusted text into a transport-safe subset.
// Some providers reject or mangle requests containing certain Unicode
// ranges, so every string that crosses the process boundary toward a
// provider goes through Clean first.
package sanitize

import "strings"

// Named code points replaced with bracketed ASCII tokens. These are checked
// before the range rules so they keep their specific tags.
var named = map[rune]string{
	'▲':          "[up-triangle]",
	'▼':          "[down-triangle]",
	'◆':          "[diamond]",
	'★':          "[star]",
	'⚡':          "[bolt]",
	'\U0001F4AC': "[chat]",
	'\U0001F525': "[fire]",
	'\U0001F680': "[rocket]",
}

// Clean is pure, total and idempotent. It replaces known symbol and emoji
// code points with bracketed tokens, strips zero-width joiners and variation
// selectors, drops everything else outside printable ASCII plus whitespace,
// and trims the result.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if tag, ok := named[r]; ok {
			b.WriteString(tag)
			continue
		}

		switch {
		case r >= 0x2600 && r <= 0x26FF: // miscellaneous symbols
			b.WriteString("[symbol]")
		case r >= 0x2700 && r <= 0x27BF: // dingbats
			b.WriteString("[symbol]")
		case r >= 0x1F600 && r <= 0x1F64F: // emoticons
			b.WriteString("[emoji]")
		case r >= 0x1F300 && r <= 0x1F5FF: // misc symbols and pictographs
			b.WriteString("[emoji]")
		case r >= 0x1F680 && r <= 0x1F6FF: // transport and map symbols
			b.WriteString("[emoji]")
		case r >= 0x1F1E0 && r <= 0x1F1FF: // regional indicators
			b.WriteString("[flag]")
		case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		case r == 0x200D: // zero width joiner
		case r >= 0x20 && r <= 0x7E:
			b.WriteRune(r)
		case r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			b.WriteRune(r)
		default:
			// anything else outside printable ASCII is dropped
		}
	}

	return strings.TrimSpace(b.String())
}
