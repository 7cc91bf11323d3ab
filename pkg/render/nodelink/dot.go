package nodelink

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/dependents/pkg/deps"
)

// Options configures diagram generation.
type Options struct {
	// Names maps project ids to display names. Nodes of unnamed projects
	// are labelled with their identifier only.
	Names map[int64]string
}

// ToDOT converts dependency edges to Graphviz DOT. Dependency files are
// drawn highlighted; dependent files point at them.
//
// Output is deterministic: nodes and edges are sorted by identifier.
func ToDOT(edges []deps.Edge, opts Options) string {
	sorted := slices.Clone(edges)
	slices.SortFunc(sorted, compareEdges)
	sorted = slices.Compact(sorted)

	var targets, sources []deps.FileIdentifier
	for _, e := range sorted {
		targets = append(targets, e.Dependency())
		sources = append(sources, e.File())
	}
	targets = uniqueIDs(targets)
	sources = uniqueIDs(sources)

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, id := range targets {
		fmt.Fprintf(&buf, "  %q [label=%q, fillcolor=lightblue];\n", id.String(), fmtLabel(id, opts.Names))
	}
	for _, id := range sources {
		fmt.Fprintf(&buf, "  %q [label=%q];\n", id.String(), fmtLabel(id, opts.Names))
	}

	buf.WriteString("\n")
	for _, e := range sorted {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.File().String(), e.Dependency().String())
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(id deps.FileIdentifier, names map[int64]string) string {
	if name := strings.TrimSpace(names[id.ProjectID]); name != "" {
		return name + "\n" + id.String()
	}
	return id.String()
}

func compareEdges(a, b deps.Edge) int {
	return cmp.Or(
		cmp.Compare(a.ProjectID, b.ProjectID),
		cmp.Compare(a.FileID, b.FileID),
		cmp.Compare(a.DependencyProjectID, b.DependencyProjectID),
		cmp.Compare(a.DependencyFileID, b.DependencyFileID),
	)
}

func uniqueIDs(ids []deps.FileIdentifier) []deps.FileIdentifier {
	slices.SortFunc(ids, func(a, b deps.FileIdentifier) int {
		return cmp.Or(cmp.Compare(a.ProjectID, b.ProjectID), cmp.Compare(a.FileID, b.FileID))
	})
	return slices.Compact(ids)
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}
