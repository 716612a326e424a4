package extract

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// destinations whose content is never document text
var rtfSkipDestinations = map[string]bool{
	"fonttbl":            true,
	"colortbl":           true,
	"stylesheet":         true,
	"info":               true,
	"pict":               true,
	"object":             true,
	"header":             true,
	"headerl":            true,
	"headerr":            true,
	"headerf":            true,
	"footer":             true,
	"footerl":            true,
	"footerr":            true,
	"footerf":            true,
	"listtable":          true,
	"listoverridetable":  true,
	"rsidtbl":            true,
	"generator":          true,
	"themedata":          true,
	"colorschememapping": true,
	"datastore":          true,
	"latentstyles":       true,
	"fldinst":            true,
	"xmlnstbl":           true,
}

var rtfWordText = map[string]string{
	"par":       "\n",
	"line":      "\n",
	"sect":      "\n\n",
	"page":      "\n\n",
	"row":       "\n",
	"tab":       "\t",
	"cell":      "\t",
	"emdash":    "—",
	"endash":    "–",
	"bullet":    "•",
	"lquote":    "‘",
	"rquote":    "’",
	"ldblquote": "“",
	"rdblquote": "”",
}

type rtfGroup struct {
	skip bool
	uc   int
}

type rtfParser struct {
	data      []byte
	pos       int
	out       strings.Builder
	group     rtfGroup
	stack     []rtfGroup
	skipChars int
}

// extractRTF strips control words and groups, keeping the visible text.
// Hex escapes are decoded as Windows-1252, \u escapes as Unicode.
func extractRTF(data []byte) (string, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte(`{\rtf`)) {
		return "", errors.New("missing rtf header")
	}
	p := &rtfParser{data: trimmed, group: rtfGroup{uc: 1}}
	p.run()
	return p.out.String(), nil
}

func (p *rtfParser) run() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch c {
		case '{':
			p.stack = append(p.stack, p.group)
			p.pos++
		case '}':
			if n := len(p.stack); n > 0 {
				p.group = p.stack[n-1]
				p.stack = p.stack[:n-1]
			}
			p.pos++
		case '\r', '\n':
			p.pos++
		case '\\':
			p.pos++
			p.control()
		default:
			p.emitByte(c)
			p.pos++
		}
	}
}

func (p *rtfParser) control() {
	if p.pos >= len(p.data) {
		return
	}
	c := p.data[p.pos]
	switch {
	case c == '\'':
		if p.pos+2 < len(p.data) {
			if b, err := strconv.ParseUint(string(p.data[p.pos+1:p.pos+3]), 16, 8); err == nil {
				p.emitByte(byte(b))
			}
		}
		p.pos += 3
	case c == '*':
		p.group.skip = true
		p.pos++
	case isASCIILetter(c):
		p.word()
	default:
		switch c {
		case '\\', '{', '}':
			p.emitByte(c)
		case '~':
			p.emitText(" ")
		case '_':
			p.emitText("-")
		case '\r', '\n':
			p.emitText("\n")
		}
		p.pos++
	}
}

func (p *rtfParser) word() {
	start := p.pos
	for p.pos < len(p.data) && isASCIILetter(p.data[p.pos]) {
		p.pos++
	}
	word := string(p.data[start:p.pos])
	numStart := p.pos
	if p.pos < len(p.data) && p.data[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '9' {
		p.pos++
	}
	param, hasParam := 0, false
	if p.pos > numStart {
		if n, err := strconv.Atoi(string(p.data[numStart:p.pos])); err == nil {
			param, hasParam = n, true
		}
	}
	if p.pos < len(p.data) && p.data[p.pos] == ' ' {
		p.pos++
	}

	switch {
	case rtfSkipDestinations[word]:
		p.group.skip = true
	case word == "uc" && hasParam:
		p.group.uc = param
	case word == "u" && hasParam:
		if param < 0 {
			param += 65536
		}
		if !p.group.skip {
			p.out.WriteRune(rune(param))
		}
		p.skipChars = p.group.uc
	default:
		if text, ok := rtfWordText[word]; ok {
			p.emitText(text)
		}
	}
}

// emitByte writes one document byte, honouring the \uN fallback skip.
func (p *rtfParser) emitByte(b byte) {
	if p.group.skip {
		return
	}
	if p.skipChars > 0 {
		p.skipChars--
		return
	}
	p.out.WriteRune(charmap.Windows1252.DecodeByte(b))
}

func (p *rtfParser) emitText(s string) {
	if p.group.skip {
		return
	}
	p.skipChars = 0
	p.out.WriteString(s)
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
