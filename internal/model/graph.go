package model

import "sort"

// Graph indexes a Document for lookups by entity id.
type Graph struct {
	// ByID provides O(1) lookup of any component by its entity id.
	ByID map[string]*Component

	// Outgoing and Incoming list the relationships leaving and entering an
	// entity id, in document order. Endpoints that are not components of the
	// document are indexed too.
	Outgoing map[string][]Relationship
	Incoming map[string][]Relationship

	doc *Document
}

func NewGraph(doc *Document) *Graph {
	g := &Graph{
		ByID:     make(map[string]*Component, len(doc.Components)),
		Outgoing: map[string][]Relationship{},
		Incoming: map[string][]Relationship{},
		doc:      doc,
	}
	for i := range doc.Components {
		c := &doc.Components[i]
		g.ByID[c.EntityID] = c
	}
	for _, r := range doc.Relationships {
		g.Outgoing[r.Source] = append(g.Outgoing[r.Source], r)
		g.Incoming[r.Target] = append(g.Incoming[r.Target], r)
	}
	return g
}

// Dangling returns the sorted ids referenced by a relationship that are not
// components of the document. A process document normally references hosts
// and process groups that live in other documents.
func (g *Graph) Dangling() []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if _, ok := g.ByID[id]; ok || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, r := range g.doc.Relationships {
		add(r.Source)
		add(r.Target)
	}
	sort.Strings(out)
	return out
}

// CountByType returns the number of relationships per relationship type.
func (g *Graph) CountByType() map[string]int {
	counts := map[string]int{}
	for _, r := range g.doc.Relationships {
		counts[r.Type]++
	}
	return counts
}

// Endpoint summarizes the edges of one entity id.
type Endpoint struct {
	ID       string
	Incoming int
	Outgoing int
}

// MostReferenced returns up to n endpoints with the most incoming
// relationships, ties broken by id.
func (g *Graph) MostReferenced(n int) []Endpoint {
	out := make([]Endpoint, 0, len(g.Incoming))
	for id, rels := range g.Incoming {
		out = append(out, Endpoint{ID: id, Incoming: len(rels), Outgoing: len(g.Outgoing[id])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Incoming != out[j].Incoming {
			return out[i].Incoming > out[j].Incoming
		}
		return out[i].ID < out[j].ID
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
