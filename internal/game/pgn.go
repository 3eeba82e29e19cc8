package game

import (
	"strconv"
	"strings"
)

// Movetext renders the numbered SAN movetext for a history, without tags or
// a result token: "1. e4 e5 2. Nf3 Nc6". An empty history yields "".
func Movetext(history []HistoryEntry) string {
	var b strings.Builder
	for i := 0; i < len(history); i += 2 {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strconv.Itoa(i/2 + 1))
		b.WriteString(". ")
		b.WriteString(history[i].SAN)
		if i+1 < len(history) {
			b.WriteString(" ")
			b.WriteString(history[i+1].SAN)
		}
	}
	return b.String()
}
