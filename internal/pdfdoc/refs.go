package pdfdoc

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfeditor/internal/pdfwarn"
	"github.com/local/pdfeditor/internal/refgraph"
)

// maxOutlineItems bounds outline traversal on malformed documents.
const maxOutlineItems = 100000

// ReferenceGraph reads the outline tree and the named destinations.
// Unresolvable references are kept with refgraph.NoTarget and reported to the
// document's warning collector.
func (d *Document) ReferenceGraph() (*refgraph.Graph, error) {
	refs, err := d.refs()
	if err != nil {
		return nil, err
	}
	r := &graphReader{
		d:       d,
		g:       refgraph.New(),
		pageIdx: make(map[int]int, len(refs)),
		seen:    map[int]bool{},
	}
	for i, ref := range refs {
		r.pageIdx[ref.ObjectNumber.Value()] = i
	}

	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("%w: catalog: %v", ErrUnreadable, err)
	}
	r.readDestinations(root)
	if o, found := root.Find("Outlines"); found {
		outlines, err := d.ctx.DereferenceDict(o)
		if err == nil && outlines != nil {
			if first, found := outlines.Find("First"); found {
				r.readItems(first, -1)
			}
		}
	}
	return r.g, nil
}

type graphReader struct {
	d       *Document
	g       *refgraph.Graph
	pageIdx map[int]int
	seen    map[int]bool
	count   int
}

func (r *graphReader) warnf(format string, args ...any) {
	r.d.warn.Addf(pdfwarn.SourceDocument, format, args...)
}

func (r *graphReader) readDestinations(root types.Dict) {
	// legacy catalog /Dests dict keyed by name
	if o, found := root.Find("Dests"); found {
		if dests, err := r.d.ctx.DereferenceDict(o); err == nil {
			for _, name := range sortedKeys(dests) {
				target, view := r.resolveExplicit(dests[name])
				r.g.Destinations[name] = refgraph.Destination{Target: target, View: view, Legacy: true}
			}
		}
	}
	// /Names /Dests name tree keyed by string
	if o, found := root.Find("Names"); found {
		if names, err := r.d.ctx.DereferenceDict(o); err == nil && names != nil {
			if tree, found := names.Find("Dests"); found {
				r.readNameTree(tree, map[int]bool{})
			}
		}
	}
}

func (r *graphReader) readNameTree(o types.Object, visited map[int]bool) {
	if ref, ok := o.(types.IndirectRef); ok {
		n := ref.ObjectNumber.Value()
		if visited[n] {
			r.warnf("name tree cycle at object %d", n)
			return
		}
		visited[n] = true
	}
	node, err := r.d.ctx.DereferenceDict(o)
	if err != nil || node == nil {
		return
	}
	if kids, found := node.Find("Kids"); found {
		if arr, err := r.d.ctx.DereferenceArray(kids); err == nil {
			for _, kid := range arr {
				r.readNameTree(kid, visited)
			}
		}
	}
	if pairs, found := node.Find("Names"); found {
		arr, err := r.d.ctx.DereferenceArray(pairs)
		if err != nil {
			return
		}
		for k := 0; k+1 < len(arr); k += 2 {
			key, ok := r.stringKey(arr[k])
			if !ok {
				continue
			}
			target, view := r.resolveExplicit(arr[k+1])
			r.g.Destinations[key] = refgraph.Destination{Target: target, View: view}
		}
	}
}

// stringKey returns the literal (escaped) form of a name tree key.
func (r *graphReader) stringKey(o types.Object) (string, bool) {
	obj, err := r.d.ctx.Dereference(o)
	if err != nil {
		return "", false
	}
	switch v := obj.(type) {
	case types.StringLiteral:
		return string(v), true
	case types.HexLiteral:
		b, err := hex.DecodeString(string(v))
		if err != nil {
			return "", false
		}
		return EscapeLiteral(b), true
	case types.Name:
		return string(v), true
	}
	return "", false
}

// resolveExplicit resolves a destination value that is an explicit
// destination array or a dict wrapping one in /D.
func (r *graphReader) resolveExplicit(o types.Object) (int, types.Array) {
	obj, err := r.d.ctx.Dereference(o)
	if err != nil {
		return refgraph.NoTarget, nil
	}
	if dict, ok := obj.(types.Dict); ok {
		inner, found := dict.Find("D")
		if !found {
			return refgraph.NoTarget, nil
		}
		if obj, err = r.d.ctx.Dereference(inner); err != nil {
			return refgraph.NoTarget, nil
		}
	}
	arr, ok := obj.(types.Array)
	if !ok || len(arr) == 0 {
		return refgraph.NoTarget, nil
	}
	view := r.directView(arr[1:])
	switch p := arr[0].(type) {
	case types.IndirectRef:
		if idx, ok := r.pageIdx[p.ObjectNumber.Value()]; ok {
			return idx, view
		}
		r.warnf("destination targets object %d which is not a page", p.ObjectNumber.Value())
	case types.Integer:
		// page number form used by some producers for local destinations
		if int(p) >= 0 && int(p) < len(r.pageIdx) {
			return int(p), view
		}
	}
	return refgraph.NoTarget, view
}

func (r *graphReader) directView(arr types.Array) types.Array {
	out := make(types.Array, 0, len(arr))
	for _, v := range arr {
		obj, err := r.d.ctx.Dereference(v)
		if err != nil {
			obj = nil
		}
		out = append(out, obj)
	}
	return out
}

// resolve resolves any destination form: explicit, named or wrapped in a GoTo action.
func (r *graphReader) resolve(o types.Object) (int, types.Array) {
	obj, err := r.d.ctx.Dereference(o)
	if err != nil || obj == nil {
		return refgraph.NoTarget, nil
	}
	var key string
	switch v := obj.(type) {
	case types.Array, types.Dict:
		return r.resolveExplicit(obj)
	case types.Name:
		key = string(v)
	case types.StringLiteral, types.HexLiteral:
		key, _ = r.stringKey(v)
	default:
		return refgraph.NoTarget, nil
	}
	if dest, ok := r.g.Destinations[key]; ok {
		return dest.Target, dest.View
	}
	r.warnf("named destination %q not found", key)
	return refgraph.NoTarget, nil
}

func (r *graphReader) readItems(first types.Object, parent refgraph.NodeID) {
	cur := first
	for cur != nil {
		if ref, ok := cur.(types.IndirectRef); ok {
			n := ref.ObjectNumber.Value()
			if r.seen[n] {
				r.warnf("outline cycle at object %d", n)
				return
			}
			r.seen[n] = true
		}
		r.count++
		if r.count > maxOutlineItems {
			r.warnf("outline truncated after %d items", maxOutlineItems)
			return
		}
		item, err := r.d.ctx.DereferenceDict(cur)
		if err != nil || item == nil {
			r.warnf("outline item is not a dictionary")
			return
		}
		node := refgraph.OutlineNode{Target: refgraph.NoTarget}
		if t, found := item.Find("Title"); found {
			node.TitleObj, _ = r.d.ctx.Dereference(t)
			node.Title = decodeText(node.TitleObj)
		}
		if dest, found := item.Find("Dest"); found {
			node.Target, node.View = r.resolve(dest)
			node.LinkLost = node.Target == refgraph.NoTarget
		} else if a, found := item.Find("A"); found {
			node.Target, node.View, node.URI = r.resolveAction(a)
			if node.Target == refgraph.NoTarget && node.URI == "" {
				r.carryAction(&node, a)
			}
		}
		if c, found := item.Find("Count"); found {
			if n, ok := r.d.number(c); ok && n > 0 {
				node.Open = true
			}
		}
		id := r.g.Add(parent, node)
		if child, found := item.Find("First"); found {
			r.readItems(child, id)
		}
		next, found := item.Find("Next")
		if !found {
			return
		}
		cur = next
	}
}

func (r *graphReader) resolveAction(o types.Object) (int, types.Array, string) {
	action, err := r.d.ctx.DereferenceDict(o)
	if err != nil || action == nil {
		return refgraph.NoTarget, nil, ""
	}
	s := action.NameEntry("S")
	if s != nil && *s == "URI" {
		if u, found := action.Find("URI"); found {
			if obj, err := r.d.ctx.Dereference(u); err == nil {
				if sl, ok := obj.(types.StringLiteral); ok {
					return refgraph.NoTarget, nil, string(sl)
				}
			}
		}
		return refgraph.NoTarget, nil, ""
	}
	if s == nil || *s != "GoTo" {
		return refgraph.NoTarget, nil, ""
	}
	d, found := action.Find("D")
	if !found {
		return refgraph.NoTarget, nil, ""
	}
	target, view := r.resolve(d)
	return target, view, ""
}

// carryAction keeps an action the graph does not model, inlined so it does
// not depend on object numbers of the source.
func (r *graphReader) carryAction(node *refgraph.OutlineNode, a types.Object) {
	if obj, ok := r.inline(a, 0); ok {
		if dict, ok := obj.(types.Dict); ok {
			node.Action = dict
			return
		}
	}
	node.LinkLost = true
	r.warnf("outline item %q: action cannot be carried over", node.Title)
}

// maxInlineDepth bounds inline on self-referencing action chains.
const maxInlineDepth = 16

// inline returns o with every indirect reference replaced by its value.
// Streams and page references cannot be inlined.
func (r *graphReader) inline(o types.Object, depth int) (types.Object, bool) {
	if depth > maxInlineDepth {
		return nil, false
	}
	if ref, ok := o.(types.IndirectRef); ok {
		if _, isPage := r.pageIdx[ref.ObjectNumber.Value()]; isPage {
			return nil, false
		}
		obj, err := r.d.ctx.Dereference(ref)
		if err != nil {
			return nil, false
		}
		o = obj
	}
	switch v := o.(type) {
	case types.StreamDict, *types.StreamDict:
		return nil, false
	case types.Dict:
		out := make(types.Dict, len(v))
		for k, e := range v {
			c, ok := r.inline(e, depth+1)
			if !ok {
				return nil, false
			}
			out[k] = c
		}
		return out, true
	case types.Array:
		out := make(types.Array, len(v))
		for k, e := range v {
			c, ok := r.inline(e, depth+1)
			if !ok {
				return nil, false
			}
			out[k] = c
		}
		return out, true
	}
	return o, true
}

// decodeText returns a readable form of a PDF text string.
func decodeText(o types.Object) string {
	switch v := o.(type) {
	case types.StringLiteral:
		if s, err := types.StringLiteralToString(v); err == nil {
			return s
		}
		return string(v)
	case types.HexLiteral:
		if s, err := types.HexLiteralToString(v); err == nil {
			return s
		}
		return string(v)
	}
	return ""
}

// EscapeLiteral returns b in PDF literal string syntax, without parentheses.
func EscapeLiteral(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '(' || c == ')' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&sb, "\\%03o", c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// SetReferences replaces the outline tree and the named destinations of the
// document with g. Targets in g are 0-based page indices of this document.
func (d *Document) SetReferences(g *refgraph.Graph) error {
	refs, err := d.refs()
	if err != nil {
		return err
	}
	root, err := d.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	root.Delete("Outlines")
	root.Delete("Dests")
	if o, found := root.Find("Names"); found {
		if names, err := d.ctx.DereferenceDict(o); err == nil && names != nil {
			names.Delete("Dests")
			if len(names) == 0 {
				root.Delete("Names")
			}
		}
	}

	w := &graphWriter{d: d, g: g, refs: refs}
	if len(g.Roots) > 0 {
		outlines := types.Dict{"Type": types.Name("Outlines")}
		ref, err := d.ctx.IndRefForNewObject(outlines)
		if err != nil {
			return err
		}
		first, last, err := w.writeItems(g.Roots, *ref)
		if err != nil {
			return err
		}
		outlines["First"] = first
		outlines["Last"] = last
		outlines["Count"] = types.Integer(w.visible(g.Roots))
		root["Outlines"] = *ref
	}

	if err := w.writeDestinations(root); err != nil {
		return err
	}
	d.dirty = true
	return nil
}

type graphWriter struct {
	d    *Document
	g    *refgraph.Graph
	refs []types.IndirectRef
}

func (w *graphWriter) dest(target int, view types.Array) (types.Array, error) {
	if target < 0 || target >= len(w.refs) {
		return nil, fmt.Errorf("reference target %d out of range [0,%d)", target, len(w.refs))
	}
	arr := types.Array{w.refs[target]}
	if len(view) == 0 {
		return append(arr, types.Name("Fit")), nil
	}
	return append(arr, view...), nil
}

// visible counts the entries shown when the given siblings are displayed.
func (w *graphWriter) visible(ids []refgraph.NodeID) int {
	n := 0
	for _, id := range ids {
		n++
		node := w.g.Node(id)
		if node.Open {
			n += w.visible(node.Children)
		}
	}
	return n
}

func (w *graphWriter) writeItems(ids []refgraph.NodeID, parent types.IndirectRef) (types.IndirectRef, types.IndirectRef, error) {
	items := make([]types.Dict, len(ids))
	refs := make([]types.IndirectRef, len(ids))
	for k, id := range ids {
		node := w.g.Node(id)
		title := node.TitleObj
		if title == nil {
			title = types.StringLiteral(EscapeLiteral([]byte(node.Title)))
		}
		item := types.Dict{"Title": title, "Parent": parent}
		if node.Target != refgraph.NoTarget {
			dest, err := w.dest(node.Target, node.View)
			if err != nil {
				return types.IndirectRef{}, types.IndirectRef{}, err
			}
			item["Dest"] = dest
		} else if node.URI != "" {
			item["A"] = types.Dict{"S": types.Name("URI"), "URI": types.StringLiteral(node.URI)}
		} else if node.Action != nil {
			item["A"] = node.Action
		}
		ref, err := w.d.ctx.IndRefForNewObject(item)
		if err != nil {
			return types.IndirectRef{}, types.IndirectRef{}, err
		}
		items[k], refs[k] = item, *ref
	}
	for k, id := range ids {
		item := items[k]
		if k > 0 {
			item["Prev"] = refs[k-1]
		}
		if k+1 < len(ids) {
			item["Next"] = refs[k+1]
		}
		node := w.g.Node(id)
		if len(node.Children) == 0 {
			continue
		}
		first, last, err := w.writeItems(node.Children, refs[k])
		if err != nil {
			return types.IndirectRef{}, types.IndirectRef{}, err
		}
		item["First"] = first
		item["Last"] = last
		count := w.visible(node.Children)
		if !node.Open {
			count = -count
		}
		item["Count"] = types.Integer(count)
	}
	return refs[0], refs[len(refs)-1], nil
}

func (w *graphWriter) writeDestinations(root types.Dict) error {
	legacy := types.Dict{}
	var pairs types.Array
	for _, name := range w.g.DestinationNames() {
		dst := w.g.Destinations[name]
		if dst.Target == refgraph.NoTarget {
			continue
		}
		arr, err := w.dest(dst.Target, dst.View)
		if err != nil {
			return err
		}
		if dst.Legacy {
			legacy[name] = arr
			continue
		}
		pairs = append(pairs, types.StringLiteral(name), arr)
	}
	if len(legacy) > 0 {
		ref, err := w.d.ctx.IndRefForNewObject(legacy)
		if err != nil {
			return err
		}
		root["Dests"] = *ref
	}
	if len(pairs) == 0 {
		return nil
	}
	tree := types.Dict{"Names": pairs}
	ref, err := w.d.ctx.IndRefForNewObject(tree)
	if err != nil {
		return err
	}
	var names types.Dict
	if o, found := root.Find("Names"); found {
		names, _ = w.d.ctx.DereferenceDict(o)
	}
	if names == nil {
		names = types.Dict{}
		root["Names"] = names
	}
	names["Dests"] = *ref
	return nil
}

// sortedKeys is used for deterministic iteration over dicts.
func sortedKeys(d types.Dict) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
