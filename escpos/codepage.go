package escpos

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// CodePage transcodes UTF-8 text into a printer character table. The zero
// value passes text through unchanged.
type CodePage struct {
	name     string
	selector byte
	charmap  *charmap.Charmap
}

// Character table numbers for ESC t on Epson-compatible firmware.
var codePages = map[string]CodePage{
	"cp437":  {name: "cp437", selector: 0, charmap: charmap.CodePage437},
	"cp850":  {name: "cp850", selector: 2, charmap: charmap.CodePage850},
	"cp1252": {name: "cp1252", selector: 16, charmap: charmap.Windows1252},
	"cp866":  {name: "cp866", selector: 17, charmap: charmap.CodePage866},
	"cp858":  {name: "cp858", selector: 19, charmap: charmap.CodePage858},
}

// LookupCodePage returns the named code page. "" and "utf8" select
// passthrough.
func LookupCodePage(name string) (CodePage, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf8", "utf-8", "none":
		return CodePage{}, nil
	}
	cp, ok := codePages[key]
	if !ok {
		return CodePage{}, fmt.Errorf("unknown code page %q", name)
	}
	return cp, nil
}

// Name returns the code page name, or "" for passthrough.
func (c CodePage) Name() string {
	return c.name
}

// Select returns ESC t n for the code page, or nil for passthrough.
func (c CodePage) Select() []byte {
	if c.charmap == nil {
		return nil
	}
	return SelectCodePage(c.selector)
}

// Text is Text with the string transcoded first. Characters missing from the
// table are replaced.
func (c CodePage) Text(s string) []byte {
	if c.charmap == nil {
		return Text(s)
	}
	enc := encoding.ReplaceUnsupported(c.charmap.NewEncoder())
	out, err := enc.String(s)
	if err != nil {
		return Text(s)
	}
	return Text(out)
}
