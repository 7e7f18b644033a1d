// Package parser implements the low-level polygon file format (PLY)
// tokenizer. It recognizes the textual header grammar and decodes the
// ASCII or binary body, driving caller-provided callbacks with the
// declared elements, properties and values.
//
// A Parser handles a single stream. Create a new one for each file.
package parser

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Format is the body encoding declared by the header format line.
type Format int

const (
	Ascii Format = iota
	BinaryLittleEndian
	BinaryBigEndian
)

func (f Format) String() string {
	switch f {
	case Ascii:
		return "ascii"
	case BinaryLittleEndian:
		return "binary_little_endian"
	case BinaryBigEndian:
		return "binary_big_endian"
	}
	return "unknown"
}

// Property is a property declaration within an element.
type Property struct {
	Name     string
	Type     Type
	List     bool
	SizeType Type // list size type, meaningful only if List
}

// Element is an element declaration.
type Element struct {
	Name       string
	Count      int
	Properties []Property
}

// Header holds everything declared before end_header.
type Header struct {
	Format     Format
	Version    float32
	Comments   []string
	ObjInfos   []string
	Elements   []Element
	DataOffset int // byte offset of the body from the beginning of the stream
}

// ElementHandlers are invoked around each instance of an element.
// Nil handlers are allowed; the instance values are then consumed
// and discarded.
type ElementHandlers struct {
	Begin func()
	End   func()
}

// ScalarHandler receives one decoded scalar value.
// float64 carries every PLY scalar type losslessly.
type ScalarHandler func(v float64)

// ListHandlers receive one length-prefixed list value.
type ListHandlers struct {
	Begin   func(n int) error
	Element func(v float64) error
	End     func()
}

// Callbacks are the registration points wired up while the header is
// parsed. Definition callbacks return the handlers used during the
// body decode. Any callback may be nil.
type Callbacks struct {
	ElementDefinition        func(name string, count int) (ElementHandlers, error)
	ScalarPropertyDefinition func(element, property string, t Type) (ScalarHandler, error)
	ListPropertyDefinition   func(element, property string, sizeType, elementType Type) (ListHandlers, error)
	Comment                  func(text string)
	ObjInfo                  func(text string)
	// EndHeader is called once after the header is fully parsed,
	// before any body value is decoded.
	EndHeader func() error
	Warning   func(line int, msg string)
}

type propertyDecl struct {
	Property
	scalar ScalarHandler
	list   ListHandlers
}

type elementDecl struct {
	Element
	handlers ElementHandlers
	props    []*propertyDecl
}

// Parser decodes one PLY stream.
type Parser struct {
	cb       Callbacks
	rb       *bufio.Reader
	header   *Header
	elements []*elementDecl
	line     int
}

func New(cb Callbacks) *Parser {
	return &Parser{cb: cb}
}

func (p *Parser) warn(msg string) {
	if p.cb.Warning != nil {
		p.cb.Warning(p.line, msg)
	}
}

// ParseHeader consumes and parses the header only. The stream is left
// positioned at the first byte of the body.
func (p *Parser) ParseHeader(r io.Reader) (*Header, error) {
	p.rb = bufio.NewReader(r)
	h := &Header{Format: -1}
	p.header = h

	magic, err := p.readLine()
	if err != nil {
		return nil, errors.Wrap(err, "reading magic")
	}
	if magic != "ply" {
		return nil, errors.Errorf("line %d: not a PLY file", p.line)
	}

	var cur *elementDecl
	for {
		line, err := p.readLine()
		if err != nil {
			return nil, errors.Wrap(err, "reading header")
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "format":
			if len(args) != 3 {
				return nil, errors.Errorf("line %d: malformed format line", p.line)
			}
			switch args[1] {
			case "ascii":
				h.Format = Ascii
			case "binary_little_endian":
				h.Format = BinaryLittleEndian
			case "binary_big_endian":
				h.Format = BinaryBigEndian
			default:
				return nil, errors.Errorf("line %d: unsupported format %q", p.line, args[1])
			}
			v, err := strconv.ParseFloat(args[2], 32)
			if err != nil {
				return nil, errors.Errorf("line %d: malformed version %q", p.line, args[2])
			}
			h.Version = float32(v)
		case "comment":
			text := strings.TrimPrefix(line, "comment")
			text = strings.TrimPrefix(text, " ")
			h.Comments = append(h.Comments, text)
			if p.cb.Comment != nil {
				p.cb.Comment(text)
			}
		case "obj_info":
			text := strings.TrimPrefix(line, "obj_info")
			text = strings.TrimPrefix(text, " ")
			h.ObjInfos = append(h.ObjInfos, text)
			if p.cb.ObjInfo != nil {
				p.cb.ObjInfo(text)
			}
		case "element":
			if len(args) != 3 {
				return nil, errors.Errorf("line %d: malformed element line", p.line)
			}
			n, err := strconv.Atoi(args[2])
			if err != nil || n < 0 {
				return nil, errors.Errorf("line %d: malformed element count %q", p.line, args[2])
			}
			cur = &elementDecl{Element: Element{Name: args[1], Count: n}}
			if p.cb.ElementDefinition != nil {
				eh, err := p.cb.ElementDefinition(args[1], n)
				if err != nil {
					return nil, err
				}
				cur.handlers = eh
			}
			p.elements = append(p.elements, cur)
		case "property":
			if cur == nil {
				return nil, errors.Errorf("line %d: property before element", p.line)
			}
			prop, err := p.parseProperty(args, cur.Name)
			if err != nil {
				return nil, err
			}
			cur.props = append(cur.props, prop)
			cur.Properties = append(cur.Properties, prop.Property)
		case "end_header":
			for _, e := range p.elements {
				h.Elements = append(h.Elements, e.Element)
			}
			if h.Format == -1 {
				return nil, errors.New("header has no format line")
			}
			return h, nil
		default:
			p.warn("unknown header keyword " + strconv.Quote(args[0]))
		}
	}
}

func (p *Parser) parseProperty(args []string, element string) (*propertyDecl, error) {
	if len(args) >= 2 && args[1] == "list" {
		if len(args) != 5 {
			return nil, errors.Errorf("line %d: malformed list property line", p.line)
		}
		st, ok := TypeByName(args[2])
		if !ok {
			return nil, errors.Errorf("line %d: unknown list size type %q", p.line, args[2])
		}
		if !st.IsInteger() {
			return nil, errors.Errorf("line %d: list size type %q is not an integer type", p.line, args[2])
		}
		et, ok := TypeByName(args[3])
		if !ok {
			return nil, errors.Errorf("line %d: unknown type %q", p.line, args[3])
		}
		prop := &propertyDecl{Property: Property{
			Name:     args[4],
			Type:     et,
			List:     true,
			SizeType: st,
		}}
		if p.cb.ListPropertyDefinition != nil {
			lh, err := p.cb.ListPropertyDefinition(element, prop.Name, st, et)
			if err != nil {
				return nil, err
			}
			prop.list = lh
		}
		return prop, nil
	}
	if len(args) != 3 {
		return nil, errors.Errorf("line %d: malformed property line", p.line)
	}
	t, ok := TypeByName(args[1])
	if !ok {
		return nil, errors.Errorf("line %d: unknown type %q", p.line, args[1])
	}
	prop := &propertyDecl{Property: Property{Name: args[2], Type: t}}
	if p.cb.ScalarPropertyDefinition != nil {
		sh, err := p.cb.ScalarPropertyDefinition(element, prop.Name, t)
		if err != nil {
			return nil, err
		}
		prop.scalar = sh
	}
	return prop, nil
}

// readLine reads one header line, tracking the line number and the
// byte offset of the body.
func (p *Parser) readLine() (string, error) {
	line, err := p.rb.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	p.line++
	p.header.DataOffset += len(line)
	return strings.TrimRight(line, "\r\n"), nil
}

// Parse decodes the whole stream: header and body.
func (p *Parser) Parse(r io.Reader) (*Header, error) {
	h, err := p.ParseHeader(r)
	if err != nil {
		return nil, err
	}
	if p.cb.EndHeader != nil {
		if err := p.cb.EndHeader(); err != nil {
			return nil, err
		}
	}
	if err := p.parseBody(h.Format); err != nil {
		return nil, err
	}
	return h, nil
}

func (p *Parser) parseBody(f Format) error {
	var order binary.ByteOrder
	switch f {
	case BinaryLittleEndian:
		order = binary.LittleEndian
	case BinaryBigEndian:
		order = binary.BigEndian
	}
	for _, e := range p.elements {
		for i := 0; i < e.Count; i++ {
			if e.handlers.Begin != nil {
				e.handlers.Begin()
			}
			for _, prop := range e.props {
				var err error
				if f == Ascii {
					err = p.asciiValue(prop)
				} else {
					err = p.binaryValue(prop, order)
				}
				if err != nil {
					return errors.Wrapf(err, "element %s %d/%d, property %s",
						e.Name, i, e.Count, prop.Name)
				}
			}
			if e.handlers.End != nil {
				e.handlers.End()
			}
		}
	}
	return nil
}

func (p *Parser) asciiValue(prop *propertyDecl) error {
	if !prop.List {
		v, err := p.asciiScalar(prop.Type)
		if err != nil {
			return err
		}
		if prop.scalar != nil {
			prop.scalar(v)
		}
		return nil
	}
	nf, err := p.asciiScalar(prop.SizeType)
	if err != nil {
		return err
	}
	n := int(nf)
	if n < 0 {
		return errors.Errorf("negative list size %d", n)
	}
	if prop.list.Begin != nil {
		if err := prop.list.Begin(n); err != nil {
			return err
		}
	}
	for j := 0; j < n; j++ {
		v, err := p.asciiScalar(prop.Type)
		if err != nil {
			return err
		}
		if prop.list.Element != nil {
			if err := prop.list.Element(v); err != nil {
				return err
			}
		}
	}
	if prop.list.End != nil {
		prop.list.End()
	}
	return nil
}

func (p *Parser) asciiScalar(t Type) (float64, error) {
	tok, err := p.readWord()
	if err != nil {
		return 0, err
	}
	if t.IsInteger() {
		if t.Signed() {
			n, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return 0, errors.Errorf("malformed %s value %q", t, tok)
			}
			return float64(n), nil
		}
		n, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			return 0, errors.Errorf("malformed %s value %q", t, tok)
		}
		return float64(n), nil
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, errors.Errorf("malformed %s value %q", t, tok)
	}
	return v, nil
}

// readWord returns the next whitespace-separated token of the body.
func (p *Parser) readWord() (string, error) {
	var sb strings.Builder
	for {
		b, err := p.rb.ReadByte()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			if sb.Len() > 0 {
				return sb.String(), nil
			}
		default:
			sb.WriteByte(b)
		}
	}
}

func (p *Parser) binaryValue(prop *propertyDecl, order binary.ByteOrder) error {
	if !prop.List {
		if prop.scalar == nil {
			_, err := p.rb.Discard(prop.Type.Size())
			return err
		}
		v, err := p.binaryScalar(prop.Type, order)
		if err != nil {
			return err
		}
		prop.scalar(v)
		return nil
	}
	nf, err := p.binaryScalar(prop.SizeType, order)
	if err != nil {
		return err
	}
	n := int(nf)
	if n < 0 {
		return errors.Errorf("negative list size %d", n)
	}
	if prop.list.Begin == nil && prop.list.Element == nil {
		_, err := p.rb.Discard(n * prop.Type.Size())
		return err
	}
	if prop.list.Begin != nil {
		if err := prop.list.Begin(n); err != nil {
			return err
		}
	}
	for j := 0; j < n; j++ {
		v, err := p.binaryScalar(prop.Type, order)
		if err != nil {
			return err
		}
		if prop.list.Element != nil {
			if err := prop.list.Element(v); err != nil {
				return err
			}
		}
	}
	if prop.list.End != nil {
		prop.list.End()
	}
	return nil
}

func (p *Parser) binaryScalar(t Type, order binary.ByteOrder) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(p.rb, buf[:t.Size()]); err != nil {
		return 0, err
	}
	switch t {
	case Int8:
		return float64(int8(buf[0])), nil
	case Uint8:
		return float64(buf[0]), nil
	case Int16:
		return float64(int16(order.Uint16(buf[:2]))), nil
	case Uint16:
		return float64(order.Uint16(buf[:2])), nil
	case Int32:
		return float64(int32(order.Uint32(buf[:4]))), nil
	case Uint32:
		return float64(order.Uint32(buf[:4])), nil
	case Float32:
		return float64(math.Float32frombits(order.Uint32(buf[:4]))), nil
	case Float64:
		return math.Float64frombits(order.Uint64(buf[:8])), nil
	}
	return 0, errors.Errorf("unknown type %d", int(t))
}
