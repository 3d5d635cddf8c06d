// Package contentstream tokenizes PDF page content streams into operations.
package contentstream

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Operation represents a single content stream operation consisting of an
// operator and the operands that precede it.
type Operation struct {
	Operator string         // e.g. "Tj", "re", "q"
	Operands []types.Object // numbers, names, strings, arrays, dicts; nil for null
}

// Parse parses data and returns all operations in order.
//
// String operands hold their unescaped bytes as types.StringLiteral, hex strings
// hold their hex digits as types.HexLiteral. An inline image (BI ... ID ... EI)
// is returned as a single "BI" operation whose operand is the image dict.
//
// On malformed input the operations parsed so far are returned together with
// the error.
func Parse(data []byte) ([]Operation, error) {
	p := &parser{data: data}
	return p.parse()
}

type parser struct {
	data     []byte
	pos      int
	operands []types.Object
	ops      []Operation
}

func (p *parser) parse() ([]Operation, error) {
	for {
		p.skipWhitespaceAndComments()
		if p.pos >= len(p.data) {
			break
		}
		c := p.data[p.pos]
		if isRegular(c) && !isNumberStart(c) {
			kw := p.readKeyword()
			switch kw {
			case "true":
				p.operands = append(p.operands, types.Boolean(true))
			case "false":
				p.operands = append(p.operands, types.Boolean(false))
			case "null":
				p.operands = append(p.operands, nil)
			case "BI":
				if err := p.parseInlineImage(); err != nil {
					return p.ops, err
				}
			default:
				p.emit(kw)
			}
			continue
		}
		start := p.pos
		obj, err := p.parseObject()
		if err != nil {
			return p.ops, fmt.Errorf("contentstream: at offset %d: %w", start, err)
		}
		p.operands = append(p.operands, obj)
	}
	if len(p.operands) > 0 {
		// trailing operands without an operator are dropped
		p.operands = nil
	}
	return p.ops, nil
}

func (p *parser) emit(op string) {
	p.ops = append(p.ops, Operation{Operator: op, Operands: p.operands})
	p.operands = nil
}

func (p *parser) parseObject() (types.Object, error) {
	if p.pos >= len(p.data) {
		return nil, fmt.Errorf("unexpected end of stream")
	}
	c := p.data[p.pos]
	switch {
	case c == '/':
		return p.parseName(), nil
	case c == '(':
		return p.parseLiteralString()
	case c == '<':
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '<' {
			return p.parseDict()
		}
		return p.parseHexString()
	case c == '[':
		return p.parseArray()
	case isNumberStart(c):
		return p.parseNumber()
	case isRegular(c):
		kw := p.readKeyword()
		switch kw {
		case "true":
			return types.Boolean(true), nil
		case "false":
			return types.Boolean(false), nil
		case "null":
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q inside object", kw)
	}
	return nil, fmt.Errorf("unexpected byte %q", c)
}

func (p *parser) parseName() types.Name {
	p.pos++ // '/'
	var b bytes.Buffer
	for p.pos < len(p.data) && isRegular(p.data[p.pos]) {
		c := p.data[p.pos]
		if c == '#' && p.pos+2 < len(p.data) {
			if v, err := strconv.ParseUint(string(p.data[p.pos+1:p.pos+3]), 16, 8); err == nil {
				b.WriteByte(byte(v))
				p.pos += 3
				continue
			}
		}
		b.WriteByte(c)
		p.pos++
	}
	return types.Name(b.String())
}

func (p *parser) parseLiteralString() (types.Object, error) {
	p.pos++ // '('
	var b bytes.Buffer
	depth := 1
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.pos >= len(p.data) {
				return nil, fmt.Errorf("unterminated string")
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '\r':
				if p.pos < len(p.data) && p.data[p.pos] == '\n' {
					p.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '7'; i++ {
						v = v*8 + int(p.data[p.pos]-'0')
						p.pos++
					}
					b.WriteByte(byte(v))
				} else {
					b.WriteByte(e)
				}
			}
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return types.StringLiteral(b.String()), nil
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return nil, fmt.Errorf("unterminated string")
}

func (p *parser) parseHexString() (types.Object, error) {
	p.pos++ // '<'
	var b bytes.Buffer
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		if c == '>' {
			s := b.String()
			if len(s)%2 == 1 {
				s += "0"
			}
			if _, err := hex.DecodeString(s); err != nil {
				return nil, fmt.Errorf("invalid hex string: %w", err)
			}
			return types.HexLiteral(s), nil
		}
		if isWhitespace(c) {
			continue
		}
		b.WriteByte(c)
	}
	return nil, fmt.Errorf("unterminated hex string")
}

func (p *parser) parseArray() (types.Object, error) {
	p.pos++ // '['
	arr := types.Array{}
	for {
		p.skipWhitespaceAndComments()
		if p.pos >= len(p.data) {
			return nil, fmt.Errorf("unterminated array")
		}
		if p.data[p.pos] == ']' {
			p.pos++
			return arr, nil
		}
		obj, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
}

func (p *parser) parseDict() (types.Object, error) {
	p.pos += 2 // '<<'
	d := types.Dict{}
	for {
		p.skipWhitespaceAndComments()
		if p.pos+1 < len(p.data) && p.data[p.pos] == '>' && p.data[p.pos+1] == '>' {
			p.pos += 2
			return d, nil
		}
		if p.pos >= len(p.data) {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if p.data[p.pos] != '/' {
			return nil, fmt.Errorf("dictionary key is not a name")
		}
		key := p.parseName()
		p.skipWhitespaceAndComments()
		val, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		d[string(key)] = val
	}
}

func (p *parser) parseNumber() (types.Object, error) {
	start := p.pos
	isFloat := false
	if p.data[p.pos] == '+' || p.data[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if c == '.' {
			isFloat = true
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	s := string(p.data[start:p.pos])
	if isFloat {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			if s == "-." || s == "." || s == "+." {
				return types.Float(0), nil
			}
			return nil, fmt.Errorf("invalid number %q", s)
		}
		return types.Float(f), nil
	}
	if s == "+" || s == "-" {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		return types.Float(f), nil
	}
	return types.Integer(i), nil
}

// parseInlineImage consumes the image dict, the ID keyword and the binary data
// up to the EI keyword.
func (p *parser) parseInlineImage() error {
	p.operands = nil
	d := types.Dict{}
	for {
		p.skipWhitespaceAndComments()
		if p.pos >= len(p.data) {
			return fmt.Errorf("contentstream: unterminated inline image")
		}
		if p.data[p.pos] == '/' {
			key := p.parseName()
			p.skipWhitespaceAndComments()
			val, err := p.parseObject()
			if err != nil {
				return fmt.Errorf("contentstream: inline image dict: %w", err)
			}
			d[string(key)] = val
			continue
		}
		kw := p.readKeyword()
		if kw != "ID" {
			return fmt.Errorf("contentstream: expected ID in inline image, got %q", kw)
		}
		break
	}
	// a single whitespace byte separates ID from the data
	if p.pos < len(p.data) && isWhitespace(p.data[p.pos]) {
		p.pos++
	}
	for i := p.pos; i+1 < len(p.data); i++ {
		if p.data[i] != 'E' || p.data[i+1] != 'I' {
			continue
		}
		before := i == 0 || isWhitespace(p.data[i-1])
		after := i+2 >= len(p.data) || isWhitespace(p.data[i+2]) || isDelimiter(p.data[i+2])
		if before && after {
			p.pos = i + 2
			p.ops = append(p.ops, Operation{Operator: "BI", Operands: []types.Object{d}})
			return nil
		}
	}
	return fmt.Errorf("contentstream: inline image without EI")
}

func (p *parser) readKeyword() string {
	start := p.pos
	for p.pos < len(p.data) && isRegular(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

func (p *parser) skipWhitespaceAndComments() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isWhitespace(c) {
			p.pos++
			continue
		}
		if c == '%' {
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		return
	}
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool {
	return !isWhitespace(c) && !isDelimiter(c)
}

func isNumberStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}
