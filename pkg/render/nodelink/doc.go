// Package nodelink renders recorded dependency edges as node-link diagrams.
//
// # Usage
//
// Convert the edges pointing at a project to DOT, then render to SVG:
//
//	edges, _ := resolver.Dependents(ctx, 238222)
//	dot := nodelink.ToDOT(edges, nodelink.Options{Names: names})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// Each node is one file, labelled "project:file" and prefixed with the
// project name when [Options.Names] knows it. Files of the queried project
// are filled light blue.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package nodelink
