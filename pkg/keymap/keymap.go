// Package keymap holds the static key-name to Android key-code table.
// Codes follow http://developer.android.com/reference/android/view/KeyEvent.html
package keymap

import (
	"sort"
	"strings"
)

var codes = map[string]int{
	"HOME":       3,
	"BACK":       4,
	"UP":         19,
	"DOWN":       20,
	"LEFT":       21,
	"RIGHT":      22,
	"CENTER":     23,
	"POWER":      26,
	"A":          29,
	"C":          31,
	"V":          50,
	"X":          52,
	"TAB":        61,
	"ENTER":      66,
	"BACKSPACE":  67,
	"MENU":       82,
	"ESC":        111,
	"DEL":        112,
	"CTRL":       113,
	"END":        123,
	"APP_SWITCH": 187,
}

// Lookup returns the key code for a key name. Names are case-insensitive.
func Lookup(name string) (int, bool) {
	code, ok := codes[strings.ToUpper(strings.TrimSpace(name))]
	return code, ok
}

// Names returns every mapped key name in sorted order.
func Names() []string {
	names := make([]string, 0, len(codes))
	for name := range codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
