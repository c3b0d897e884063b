// Package keys decodes the vendor special-key input reports.
package keys

import (
	"fmt"
	"sort"
	"strings"
)

// ReportID marks special-key input reports.
const ReportID byte = 0x5A

// Code is a special key scan code.
type Code byte

const (
	Rog           Code = 0x38
	Fan           Code = 0xAE
	Aura          Code = 0xB3
	BacklightDown Code = 0xC5
	BacklightUp   Code = 0xC4
	TouchPad      Code = 0x6B
	Mic           Code = 0x7C
	Sleep         Code = 0x6C
	Airplane      Code = 0x88
	Copy          Code = 0x9E
	Paste         Code = 0x8A
)

var names = map[Code]string{
	Rog:           "Rog",
	Fan:           "Fan",
	Aura:          "Aura",
	BacklightDown: "BacklightDown",
	BacklightUp:   "BacklightUp",
	TouchPad:      "TouchPad",
	Mic:           "Mic",
	Sleep:         "Sleep",
	Airplane:      "Airplane",
	Copy:          "Copy",
	Paste:         "Paste",
}

func (c Code) Known() bool {
	_, ok := names[c]
	return ok
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(0x%02x)", byte(c))
}

// ParseCode looks a key up by name, case-insensitively.
func ParseCode(name string) (Code, bool) {
	name = strings.TrimSpace(name)
	for c, n := range names {
		if strings.EqualFold(n, name) {
			return c, true
		}
	}
	return 0, false
}

// All returns the known codes ordered by name.
func All() []Code {
	out := make([]Code, 0, len(names))
	for c := range names {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return names[out[i]] < names[out[j]] })
	return out
}

// Decode returns the key carried by an input report. Reports with another
// id or an unknown code yield ok == false.
func Decode(report []byte) (Code, bool) {
	if len(report) < 2 || report[0] != ReportID {
		return 0, false
	}
	c := Code(report[1])
	return c, c.Known()
}
