package rewrite

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfeditor/internal/detect"
	"github.com/local/pdfeditor/internal/pdfdoc"
	"github.com/local/pdfeditor/internal/pdftest"
	"github.com/local/pdfeditor/internal/pdfwarn"
	"github.com/local/pdfeditor/internal/plan"
	"github.com/local/pdfeditor/internal/refgraph"
)

func decisions(empty ...bool) []detect.CombinedDecision {
	out := make([]detect.CombinedDecision, len(empty))
	for i, e := range empty {
		out[i] = detect.CombinedDecision{PageDecision: detect.PageDecision{PageIndex: i, IsEmpty: e}}
	}
	return out
}

func fixture(t *testing.T) (string, *pdfdoc.Document, *plan.Plan) {
	t.Helper()
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "report.pdf", pdftest.Doc{
		Pages: pdftest.Pages(pdftest.TextContent, "", pdftest.ShapeContent),
		Outlines: []pdftest.Outline{
			{Title: "Intro", Page: 0},
			{Title: "Blank", Page: 1},
			{Title: "Figure", Page: 2},
		},
		Dests: map[string]int{"intro": 0, "blank": 1},
		Info: map[string]string{
			"Title":        "Quarterly Report",
			"Author":       "Finance",
			"Producer":     "OrigProducer 1.0",
			"CreationDate": "D:20010101000000Z",
		},
	})
	doc, err := pdfdoc.Open(path, pdfwarn.NewCollector())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { doc.Close() })
	g, err := doc.ReferenceGraph()
	if err != nil {
		t.Fatalf("ReferenceGraph failed: %v", err)
	}
	p, err := plan.Build(decisions(false, true, false), g)
	if err != nil {
		t.Fatalf("plan.Build failed: %v", err)
	}
	return path, doc, p
}

func TestOutputPath(t *testing.T) {
	if got := OutputPath("/in/a.b.PDF", "", 0); got != filepath.Join("/in", "a.b.edited.pdf") {
		t.Errorf("got %s", got)
	}
	if got := OutputPath("/in/scan.pdf", "/out", 3); got != filepath.Join("/out", "scan.edited.3.pdf") {
		t.Errorf("got %s", got)
	}
}

func TestRewriteRemovesPagesAndPrunesReferences(t *testing.T) {
	path, doc, p := fixture(t)
	srcBefore, _ := os.ReadFile(path)

	o := Rewrite(doc, p, path, Options{})
	if o.Err != nil {
		t.Fatalf("Rewrite failed: %v", o.Err)
	}
	if o.Status != StatusChanged || o.PagesRemoved != 1 || o.PagesOutput != 2 {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if filepath.Base(o.OutputPath) != "report.edited.pdf" {
		t.Errorf("unexpected output path %s", o.OutputPath)
	}
	if o.OutlinesDropped != 1 || o.DestinationsDropped != 1 {
		t.Errorf("dropped outlines/dests = %d/%d", o.OutlinesDropped, o.DestinationsDropped)
	}

	srcAfter, _ := os.ReadFile(path)
	if !bytes.Equal(srcBefore, srcAfter) {
		t.Error("source file was modified")
	}

	out, err := pdfdoc.Open(o.OutputPath, nil)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer out.Close()
	if out.PageCount() != 2 {
		t.Fatalf("expected 2 output pages, got %d", out.PageCount())
	}
	g, err := out.ReferenceGraph()
	if err != nil {
		t.Fatalf("ReferenceGraph failed: %v", err)
	}
	if len(g.Roots) != 2 {
		t.Fatalf("expected 2 outline entries, got %d", len(g.Roots))
	}
	if n := g.Node(g.Roots[1]); n.Title != "Figure" || n.Target != 1 {
		t.Errorf("unexpected second entry %+v", n)
	}
	if _, ok := g.Destinations["blank"]; ok {
		t.Error("destination on removed page survived")
	}
	if d, ok := g.Destinations["intro"]; !ok || d.Target != 0 {
		t.Errorf("intro destination = %+v, %v", d, ok)
	}

	info, err := out.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	for key, want := range map[string]string{
		"Title":        "Quarterly Report",
		"Author":       "Finance",
		"Producer":     "OrigProducer 1.0",
		"CreationDate": "D:20010101000000Z",
	} {
		lit, ok := info[key].(types.StringLiteral)
		if !ok {
			t.Errorf("%s not copied: %v", key, info[key])
			continue
		}
		if s, err := types.StringLiteralToString(lit); err != nil || s != want {
			t.Errorf("%s = %q (%v), want %q", key, s, err, want)
		}
	}
	if v, ok := info["ModDate"]; ok {
		t.Errorf("ModDate added to output: %v", v)
	}
}

func TestRewriteReportsUnresolvedReferences(t *testing.T) {
	path, doc, _ := fixture(t)
	g, err := doc.ReferenceGraph()
	if err != nil {
		t.Fatalf("ReferenceGraph failed: %v", err)
	}
	g.Destinations["ghost"] = refgraph.Destination{Target: refgraph.NoTarget}
	g.Add(-1, refgraph.OutlineNode{Title: "Launch", Target: refgraph.NoTarget, LinkLost: true})
	p, err := plan.Build(decisions(false, true, false), g)
	if err != nil {
		t.Fatalf("plan.Build failed: %v", err)
	}

	o := Rewrite(doc, p, path, Options{})
	if o.Err != nil {
		t.Fatalf("Rewrite failed: %v", o.Err)
	}
	if o.DestinationsDropped != 2 || o.OutlineLinksLost != 1 {
		t.Errorf("dests dropped = %d, links lost = %d", o.DestinationsDropped, o.OutlineLinksLost)
	}
	for _, want := range []string{
		"Dropped 1 named destination(s) that referenced removed pages.",
		"Dropped 1 named destination(s) that did not resolve to a page.",
		"Kept 1 outline item(s) without their link",
	} {
		found := false
		for _, w := range o.Warnings {
			found = found || strings.HasPrefix(w, want)
		}
		if !found {
			t.Errorf("missing warning %q in %v", want, o.Warnings)
		}
	}

	out, err := pdfdoc.Open(o.OutputPath, nil)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer out.Close()
	got, err := out.ReferenceGraph()
	if err != nil {
		t.Fatalf("ReferenceGraph failed: %v", err)
	}
	if _, ok := got.Destinations["ghost"]; ok {
		t.Error("unresolved destination was written")
	}
}

func TestRewriteKeepsMetadataThroughFinish(t *testing.T) {
	path, doc, p := fixture(t)
	finish := func(out *pdfdoc.Document) error {
		if _, err := out.AddStandardFont(0, "Helvetica"); err != nil {
			return err
		}
		return out.AppendContent(0, []byte("BT /FPN 10 Tf (1) Tj ET"))
	}

	o := Rewrite(doc, p, path, Options{Finish: finish})
	if o.Err != nil {
		t.Fatalf("Rewrite failed: %v", o.Err)
	}
	out, err := pdfdoc.Open(o.OutputPath, nil)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer out.Close()
	info, err := out.Info()
	if err != nil {
		t.Fatal(err)
	}
	lit, _ := info["Producer"].(types.StringLiteral)
	if s, _ := types.StringLiteralToString(lit); s != "OrigProducer 1.0" {
		t.Errorf("producer = %q", s)
	}
	lit, _ = info["CreationDate"].(types.StringLiteral)
	if s, _ := types.StringLiteralToString(lit); s != "D:20010101000000Z" {
		t.Errorf("creation date = %q", s)
	}
}

func TestRewriteCollisionSuffixes(t *testing.T) {
	path, doc, p := fixture(t)
	dir := filepath.Dir(path)
	if err := os.WriteFile(filepath.Join(dir, "report.edited.pdf"), []byte("taken"), 0o644); err != nil {
		t.Fatal(err)
	}

	first := Rewrite(doc, p, path, Options{})
	if first.Err != nil {
		t.Fatalf("Rewrite failed: %v", first.Err)
	}
	if filepath.Base(first.OutputPath) != "report.edited.1.pdf" {
		t.Errorf("expected report.edited.1.pdf, got %s", first.OutputPath)
	}
	if len(first.Warnings) == 0 || !strings.Contains(first.Warnings[0], "report.edited.1.pdf") {
		t.Errorf("missing collision warning: %v", first.Warnings)
	}

	second := Rewrite(doc, p, path, Options{})
	if filepath.Base(second.OutputPath) != "report.edited.2.pdf" {
		t.Errorf("expected report.edited.2.pdf, got %s", second.OutputPath)
	}

	taken, _ := os.ReadFile(filepath.Join(dir, "report.edited.pdf"))
	if string(taken) != "taken" {
		t.Error("existing output was overwritten")
	}
}

func TestRewriteUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "full.pdf", pdftest.Doc{Pages: pdftest.Pages(pdftest.TextContent)})
	doc, err := pdfdoc.Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	p, err := plan.Build(decisions(false), nil)
	if err != nil {
		t.Fatal(err)
	}

	o := Rewrite(doc, p, path, Options{})
	if o.Status != StatusUnchanged || o.OutputPath != "" {
		t.Errorf("unexpected outcome %+v", o)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no new files, found %d entries", len(entries))
	}

	o = Rewrite(doc, p, path, Options{WriteWhenUnchanged: true, OutDir: filepath.Join(dir, "out")})
	if o.Err != nil {
		t.Fatalf("Rewrite failed: %v", o.Err)
	}
	if o.Status != StatusUnchanged || filepath.Base(o.OutputPath) != "full.edited.pdf" {
		t.Errorf("unexpected outcome %+v", o)
	}
}

func TestRewriteNothingRetained(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "blank.pdf", pdftest.Doc{Pages: pdftest.Pages("", "")})
	doc, err := pdfdoc.Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	p, err := plan.Build(decisions(true, true), nil)
	if err != nil {
		t.Fatal(err)
	}

	o := Rewrite(doc, p, path, Options{})
	if o.Status != StatusFailed || !errors.Is(o.Err, ErrNothingRetained) {
		t.Errorf("unexpected outcome %+v", o)
	}
	if _, err := os.Stat(OutputPath(path, "", 0)); !os.IsNotExist(err) {
		t.Error("output written for a document with no retained pages")
	}
}

func TestRewriteFinishFailure(t *testing.T) {
	path, doc, p := fixture(t)
	boom := errors.New("boom")
	o := Rewrite(doc, p, path, Options{Finish: func(*pdfdoc.Document) error { return boom }})
	if o.Status != StatusFailed || !errors.Is(o.Err, boom) {
		t.Errorf("unexpected outcome %+v", o)
	}
	if _, err := os.Stat(OutputPath(path, "", 0)); !os.IsNotExist(err) {
		t.Error("output written despite finish failure")
	}
}
