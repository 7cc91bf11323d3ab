// Package render groups the visual exports of the dependents graph.
//
// The [nodelink] subpackage produces Graphviz DOT and SVG diagrams of the
// files that depend on a project.
package render
