// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// Alpha is a graphics state with fill (ca) and stroke (CA) opacity.
type Alpha struct {
	Fill, Stroke float64
}

// Page describes one page. Zero width or height means US Letter.
type Page struct {
	Content   string
	Links     int // invisible link annotations
	ExtGState map[string]Alpha
	Width     float64
	Height    float64
}

// Outline is an outline entry; Page is 0-based, -1 for no destination.
type Outline struct {
	Title    string
	Page     int
	Open     bool
	Children []Outline
	// Action is a raw /A dictionary written as its own object when Page is
	// -1. A %s in it is replaced by a reference to a stream holding Script.
	Action string
	Script string
}

// Doc describes a whole document.
type Doc struct {
	Pages       []Page
	Outlines    []Outline
	Dests       map[string]int // /Names /Dests tree
	LegacyDests map[string]int // catalog /Dests dict
	Info        map[string]string
}

// Common content streams.
const (
	TextContent      = "BT /F1 12 Tf 72 700 Td (Hello) Tj ET"
	ShapeContent     = "0 0 0 RG 72 72 144 72 re S"
	FilledRect       = "0 0 0 rg 0 0 612 792 re f"
	InvisibleText    = "BT 3 Tr /F1 12 Tf 72 720 Td (Invisible) Tj ET"
	ZeroSizeText     = "BT /F1 0 Tf 72 720 Td (Zero) Tj ET"
	TransparentText  = "/GS0 gs BT /F1 12 Tf 72 720 Td (Ghost) Tj ET"
	StateOnlyContent = "q 1 0 0 1 0 0 cm BT ET Q"
)

// TransparentGS is the graphics state used by TransparentText.
var TransparentGS = map[string]Alpha{"GS0": {Fill: 0, Stroke: 0}}

// Pages returns one page per content stream.
func Pages(contents ...string) []Page {
	out := make([]Page, len(contents))
	for i, c := range contents {
		out[i] = Page{Content: c}
	}
	return out
}

type writer struct {
	objs []string
}

func (w *writer) alloc() int {
	w.objs = append(w.objs, "")
	return len(w.objs)
}

func (w *writer) set(n int, body string) { w.objs[n-1] = body }

func ref(n int) string { return strconv.Itoa(n) + " 0 R" }

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Build returns the serialized document.
func Build(d Doc) []byte {
	w := &writer{}
	catalog := w.alloc()
	pagesNum := w.alloc()
	font := w.alloc()
	w.set(font, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	pageNums := make([]int, len(d.Pages))
	for i := range d.Pages {
		pageNums[i] = w.alloc()
	}
	for i, p := range d.Pages {
		width, height := p.Width, p.Height
		if width <= 0 || height <= 0 {
			width, height = 612, 792
		}
		content := w.alloc()
		w.set(content, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(p.Content), p.Content))

		var res strings.Builder
		res.WriteString("<< /Font << /F1 " + ref(font) + " >>")
		if len(p.ExtGState) > 0 {
			res.WriteString(" /ExtGState <<")
			for _, name := range sortedNames(p.ExtGState) {
				a := p.ExtGState[name]
				fmt.Fprintf(&res, " /%s << /Type /ExtGState /ca %s /CA %s >>", name, num(a.Fill), num(a.Stroke))
			}
			res.WriteString(" >>")
		}
		res.WriteString(" >>")

		body := fmt.Sprintf("<< /Type /Page /Parent %s /MediaBox [0 0 %s %s] /Resources %s /Contents %s",
			ref(pagesNum), num(width), num(height), res.String(), ref(content))
		if p.Links > 0 {
			annots := make([]string, p.Links)
			for k := range annots {
				a := w.alloc()
				w.set(a, fmt.Sprintf("<< /Type /Annot /Subtype /Link /Rect [%d 100 %d 120] /Border [0 0 0] >>", 100+k*30, 120+k*30))
				annots[k] = ref(a)
			}
			body += " /Annots [" + strings.Join(annots, " ") + "]"
		}
		w.set(pageNums[i], body+" >>")
	}
	kids := make([]string, len(pageNums))
	for i, n := range pageNums {
		kids[i] = ref(n)
	}
	w.set(pagesNum, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pageNums)))

	dest := func(page int) string {
		return "[" + ref(pageNums[page]) + " /XYZ 0 792 null]"
	}

	cat := "<< /Type /Catalog /Pages " + ref(pagesNum)
	if len(d.Outlines) > 0 {
		outlines := w.alloc()
		first, last, count := w.outlineItems(d.Outlines, outlines, dest)
		w.set(outlines, fmt.Sprintf("<< /Type /Outlines /First %s /Last %s /Count %d >>", ref(first), ref(last), count))
		cat += " /Outlines " + ref(outlines)
	}
	if len(d.Dests) > 0 {
		var pairs []string
		for _, name := range sortedNames(d.Dests) {
			pairs = append(pairs, "("+name+") "+dest(d.Dests[name]))
		}
		tree := w.alloc()
		w.set(tree, "<< /Names ["+strings.Join(pairs, " ")+"] >>")
		cat += " /Names << /Dests " + ref(tree) + " >>"
	}
	if len(d.LegacyDests) > 0 {
		var entries []string
		for _, name := range sortedNames(d.LegacyDests) {
			entries = append(entries, "/"+name+" "+dest(d.LegacyDests[name]))
		}
		cat += " /Dests << " + strings.Join(entries, " ") + " >>"
	}
	w.set(catalog, cat+" >>")

	info := 0
	if len(d.Info) > 0 {
		info = w.alloc()
		var entries []string
		for _, k := range sortedNames(d.Info) {
			entries = append(entries, "/"+k+" ("+d.Info[k]+")")
		}
		w.set(info, "<< "+strings.Join(entries, " ")+" >>")
	}
	return w.serialize(catalog, info)
}

func (w *writer) outlineItems(items []Outline, parent int, dest func(int) string) (first, last, visible int) {
	nums := make([]int, len(items))
	for i := range items {
		nums[i] = w.alloc()
	}
	for i, it := range items {
		body := fmt.Sprintf("<< /Title (%s) /Parent %s", it.Title, ref(parent))
		if it.Page >= 0 {
			body += " /Dest " + dest(it.Page)
		} else if it.Action != "" {
			action := it.Action
			if strings.Contains(action, "%s") {
				js := w.alloc()
				w.set(js, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(it.Script), it.Script))
				action = fmt.Sprintf(action, ref(js))
			}
			a := w.alloc()
			w.set(a, action)
			body += " /A " + ref(a)
		}
		if i > 0 {
			body += " /Prev " + ref(nums[i-1])
		}
		if i+1 < len(items) {
			body += " /Next " + ref(nums[i+1])
		}
		visible++
		if len(it.Children) > 0 {
			f, l, c := w.outlineItems(it.Children, nums[i], dest)
			count := -c
			if it.Open {
				count = c
				visible += c
			}
			body += fmt.Sprintf(" /First %s /Last %s /Count %d", ref(f), ref(l), count)
		}
		w.set(nums[i], body+" >>")
	}
	return nums[0], nums[len(nums)-1], visible
}

func (w *writer) serialize(root, info int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(w.objs))
	for i, body := range w.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(w.objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %s", len(w.objs)+1, ref(root))
	if info > 0 {
		buf.WriteString(" /Info " + ref(info))
	}
	fmt.Fprintf(&buf, " >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func sortedNames[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write builds d and writes it to dir/name, returning the path.
func Write(t testing.TB, dir, name string, d Doc) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(d), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}
