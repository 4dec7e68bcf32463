// Package depgraph holds dependency graphs as an arena of package nodes
// indexed by identity key, and flattens them into deduplicated dependency
// lists with path tracking and dev classification.
package depgraph

import (
	"slices"

	"github.com/depscan/depscan/pkg/models"
)

// NodeID indexes a node within a single Graph.
type NodeID int

type node struct {
	name       string
	version    string
	devHint    bool
	unresolved bool
}

type root struct {
	id  NodeID
	dev bool
}

// Graph is the dependency graph of a single ecosystem within a single source.
//
// Nodes are unique per (name, version). Edges point from a package to the
// packages it requires. Roots are the packages the project declares directly.
type Graph struct {
	Ecosystem models.Ecosystem
	// Source is the file the graph was built from, copied onto every
	// dependency produced by Dependencies.
	Source string
	// HasDevInfo is set by parsers whose format records dev scoping.
	HasDevInfo bool

	nodes      []node
	index      map[models.PackageKey]NodeID
	children   [][]NodeID
	parents    [][]NodeID
	specifiers map[string]NodeID
	roots      []root
}

func New(ecosystem models.Ecosystem) *Graph {
	return &Graph{
		Ecosystem:  ecosystem,
		index:      make(map[models.PackageKey]NodeID),
		specifiers: make(map[string]NodeID),
	}
}

func (g *Graph) key(name, version string) models.PackageKey {
	return models.PackageKey{Ecosystem: g.Ecosystem, Name: name, Version: version}
}

// AddPackage returns the node for name@version, creating it if needed.
func (g *Graph) AddPackage(name, version string) NodeID {
	k := g.key(name, version)
	if id, ok := g.index[k]; ok {
		return id
	}

	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, node{name: name, version: version})
	g.children = append(g.children, nil)
	g.parents = append(g.parents, nil)
	g.index[k] = id

	return id
}

// Lookup finds the node for name@version.
func (g *Graph) Lookup(name, version string) (NodeID, bool) {
	id, ok := g.index[g.key(name, version)]

	return id, ok
}

// LookupName returns every node with the given name, in insertion order.
func (g *Graph) LookupName(name string) []NodeID {
	var ids []NodeID
	for i, n := range g.nodes {
		if n.name == name {
			ids = append(ids, NodeID(i))
		}
	}

	return ids
}

// AddSpecifier records that a requirement string such as "lodash@^4.0.0"
// resolved to the given node.
func (g *Graph) AddSpecifier(spec string, id NodeID) {
	g.specifiers[spec] = id
}

// ResolveSpecifier returns the node a requirement string resolved to.
func (g *Graph) ResolveSpecifier(spec string) (NodeID, bool) {
	id, ok := g.specifiers[spec]

	return id, ok
}

// AddEdge records that from requires to. Duplicate edges and self edges are ignored.
func (g *Graph) AddEdge(from, to NodeID) {
	if from == to || slices.Contains(g.children[from], to) {
		return
	}

	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
}

// AddRoot declares id as a direct dependency of the project. A package that
// is declared both as a dev and a prod dependency is a prod dependency.
func (g *Graph) AddRoot(id NodeID, dev bool) {
	for i, r := range g.roots {
		if r.id == id {
			g.roots[i].dev = r.dev && dev

			return
		}
	}

	g.roots = append(g.roots, root{id: id, dev: dev})
}

// HasRoots reports whether any direct dependencies have been declared.
func (g *Graph) HasRoots() bool {
	return len(g.roots) > 0
}

// SetDevHint records a per-package dev flag from formats which store one.
// The hint is only used for packages that end up as inferred roots.
func (g *Graph) SetDevHint(id NodeID, dev bool) {
	g.nodes[id].devHint = dev
}

// MarkUnresolved flags a node whose version is still a range.
func (g *Graph) MarkUnresolved(id NodeID) {
	g.nodes[id].unresolved = true
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the name and version of a node.
func (g *Graph) Node(id NodeID) (string, string) {
	n := g.nodes[id]

	return n.name, n.version
}

// Roots returns the declared direct dependencies in declaration order.
func (g *Graph) Roots() []NodeID {
	ids := make([]NodeID, 0, len(g.roots))
	for _, r := range g.roots {
		ids = append(ids, r.id)
	}

	return ids
}
