package stamp

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"

	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/pdftest"
	"github.com/local/pdfeditor/internal/render"
)

func TestRoman(t *testing.T) {
	cases := []struct {
		n     int
		upper string
	}{
		{1, "I"},
		{4, "IV"},
		{9, "IX"},
		{14, "XIV"},
		{40, "XL"},
		{90, "XC"},
		{400, "CD"},
		{1994, "MCMXCIV"},
		{2024, "MMXXIV"},
	}
	for _, tc := range cases {
		got, err := Roman(tc.n)
		if err != nil || got != tc.upper {
			t.Errorf("Roman(%d) = %q, %v; want %q", tc.n, got, err, tc.upper)
		}
		lower, err := FormatLabel("{roman}", tc.n)
		if err != nil || lower != strings.ToLower(tc.upper) {
			t.Errorf("FormatLabel({roman}, %d) = %q, %v", tc.n, lower, err)
		}
	}
}

func TestRomanRejectsNonPositive(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := Roman(n); !errors.Is(err, ErrInvalidOrdinal) {
			t.Errorf("Roman(%d): expected ErrInvalidOrdinal, got %v", n, err)
		}
		if _, err := FormatLabel("{page}", n); !errors.Is(err, ErrInvalidOrdinal) {
			t.Errorf("FormatLabel(%d): expected ErrInvalidOrdinal, got %v", n, err)
		}
	}
}

func TestFormatLabel(t *testing.T) {
	cases := []struct {
		format string
		n      int
		want   string
	}{
		{"{page}", 12, "12"},
		{"Page {page}", 3, "Page 3"},
		{"- {roman} -", 4, "- iv -"},
		{"{ROMAN}/{page}", 9, "IX/9"},
		{"static", 5, "static"},
	}
	for _, tc := range cases {
		got, err := FormatLabel(tc.format, tc.n)
		if err != nil || got != tc.want {
			t.Errorf("FormatLabel(%q, %d) = %q, %v; want %q", tc.format, tc.n, got, err, tc.want)
		}
	}
}

// page returns a white letter page at 72 dpi with an optional black square
// covering the box at (0.5in, 0.5in) of size 1in.
func page(inked bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 612, 792))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if inked {
		// y is measured from the top: the box spans 792-108 .. 792-36
		draw.Draw(img, image.Rect(36, 684, 108, 756), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	}
	return img
}

var box = Box{X: 0.5, Y: 0.5, W: 1, H: 1}

func TestSampleBox(t *testing.T) {
	s := SampleBox(page(false), 72, box, 250)
	if !s.Valid || s.InkRatio != 0 {
		t.Errorf("blank box: %+v", s)
	}
	if s.Rect != image.Rect(36, 684, 108, 756) {
		t.Errorf("unexpected rect %v", s.Rect)
	}
	if s.Cover != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("unexpected cover %v", s.Cover)
	}

	s = SampleBox(page(true), 72, box, 250)
	if s.InkRatio != 1 {
		t.Errorf("inked box ratio = %v", s.InkRatio)
	}

	s = SampleBox(page(false), 72, Box{X: 20, Y: 20, W: 1, H: 1}, 250)
	if s.Valid {
		t.Error("box outside the page should be invalid")
	}
}

func TestEvaluateGuardrail(t *testing.T) {
	inked := SampleBox(page(true), 72, box, 250)
	clear := SampleBox(page(false), 72, box, 250)

	cases := []struct {
		name   string
		s      Sample
		force  bool
		action Action
		reason string
	}{
		{"clear", clear, false, ActionStamped, "stamped"},
		{"clear forced", clear, true, ActionStamped, "stamped"},
		{"inked", inked, false, ActionGuardrailSkipped, ReasonInkThresholdExceeded},
		{"inked forced", inked, true, ActionStampedForced, "stamped_forced"},
		{"invalid", Sample{}, false, ActionGuardrailSkipped, ReasonInvalidSampleArea},
		{"invalid forced", Sample{}, true, ActionStampedForced, "stamped_forced"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			action, reason := Evaluate(tc.s, tc.force, 0.0005)
			if action != tc.action || reason != tc.reason {
				t.Errorf("got %s/%s, want %s/%s", action, reason, tc.action, tc.reason)
			}
		})
	}
}

func TestEvaluateThresholdIsInclusive(t *testing.T) {
	s := Sample{Valid: true, InkRatio: 0.01}
	if a, _ := Evaluate(s, false, 0.01); a != ActionGuardrailSkipped {
		t.Errorf("ratio equal to threshold should trip the guardrail, got %s", a)
	}
}

func TestCoverColorUsesBorder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 240, G: 230, B: 200, A: 255}}, image.Point{}, draw.Src)
	// dark centre should not influence the tone
	draw.Draw(img, image.Rect(4, 4, 16, 16), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	got := CoverColor(img, img.Bounds())
	if got != (color.RGBA{R: 240, G: 230, B: 200, A: 255}) {
		t.Errorf("unexpected cover %v", got)
	}
	if TextColor(got) != (color.RGBA{A: 255}) {
		t.Error("expected black text on a light cover")
	}
	if TextColor(color.RGBA{R: 20, G: 20, B: 60, A: 255}) != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Error("expected white text on a dark cover")
	}
}

func TestOverlayContent(t *testing.T) {
	spec := Spec{Box: box, Font: "Helvetica", Size: 10, Format: "{page}"}
	content := string(OverlayContent("FPN", spec, "(3)", color.RGBA{R: 255, G: 255, B: 255, A: 255}))

	for _, want := range []string{
		"1.000000 1.000000 1.000000 rg 36.000 36.000 72.000 72.000 re f",
		"BT /FPN 10.000 Tf 0.000000 0.000000 0.000000 rg",
		`(\(3\)) Tj ET`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("overlay missing %q:\n%s", want, content)
		}
	}
}

func TestTextWidthFallback(t *testing.T) {
	if w := TextWidth("12", "NotAFont", 10); w != 0.56*10*2 {
		t.Errorf("unexpected fallback width %v", w)
	}
	if w := TextWidth("12", "Helvetica", 10); w <= 0 {
		t.Errorf("expected positive width, got %v", w)
	}
}

type fakeOpener struct{ pages []*image.RGBA }

func (f fakeOpener) OpenBytes([]byte) (render.Rasterizer, error) { return fakeRaster(f), nil }

type fakeRaster struct{ pages []*image.RGBA }

func (f fakeRaster) NumPage() int { return len(f.pages) }
func (f fakeRaster) Close() error { return nil }
func (f fakeRaster) Render(page int, dpi float64) (*image.RGBA, error) {
	return f.pages[page], nil
}

func TestStampDocument(t *testing.T) {
	doc, err := pdfdoc.OpenBytes("out.pdf", pdftest.Build(pdftest.Doc{
		Pages: pdftest.Pages(pdftest.TextContent, pdftest.TextContent),
	}), nil)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	defer doc.Close()

	opener := fakeOpener{pages: []*image.RGBA{page(false), page(true)}}
	spec := Spec{Box: box, Font: "Helvetica", Size: 10, Format: "{ROMAN}"}
	outcomes, err := Stamp(doc, opener, spec, Params{DPI: 72, WhiteThreshold: 250, InkThreshold: 0.0005})
	if err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Action != ActionStamped || outcomes[0].Label != "I" {
		t.Errorf("page 1: %+v", outcomes[0])
	}
	if outcomes[1].Action != ActionGuardrailSkipped || outcomes[1].Reason != ReasonInkThresholdExceeded {
		t.Errorf("page 2: %+v", outcomes[1])
	}
	applied, forced, skipped := Counts(outcomes)
	if applied != 1 || forced != 0 || skipped != 1 {
		t.Errorf("counts = %d/%d/%d", applied, forced, skipped)
	}

	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	reopened, err := pdfdoc.OpenBytes("out.pdf", data, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	p0, err := reopened.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(p0.Content, []byte("(I) Tj")) {
		t.Errorf("label not drawn on page 1: %q", p0.Content)
	}
	p1, err := reopened.Page(1)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(p1.Content, []byte("Tm (II) Tj")) {
		t.Error("skipped page was stamped")
	}
}
