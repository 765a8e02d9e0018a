package wander

// Rand is the random source used for node selection (*rand.Rand satisfies it).
type Rand interface {
	Intn(n int) int
}

// NextNode picks the node a bot at cur should travel to next, having arrived from
// prev (0 when there is none). A dead end always leads back to its only neighbor.
// Otherwise neighbors other than prev are preferred when their level range suits lvl;
// failing that the lowest-level neighbors are taken, and finally any neighbor but prev.
// ok is false only when cur is not a node of mapID.
func (g *Graph) NextNode(mapID, cur, prev uint32, lvl uint8, rng Rand) (uint32, Position, bool) {
	n := g.node(mapID, cur)
	if n == nil || len(n.Links) == 0 {
		return 0, Position{}, false
	}
	mapNodes := g.nodes[mapID]

	if len(n.Links) == 1 {
		next := mapNodes[n.Links[0]]
		return next.ID, next.Pos, true
	}

	level := int(lvl)
	candidates := make([]*Node, 0, len(n.Links))
	lowestMax := 255
	for _, id := range n.Links {
		c := mapNodes[id]
		if c.ID != prev && (int(c.MinLevel) <= level+4 || int(c.MaxLevel) <= level+6) {
			candidates = append(candidates, c)
		}
		if int(c.MaxLevel) < lowestMax {
			lowestMax = int(c.MaxLevel)
		}
	}
	if len(candidates) == 0 {
		for _, id := range n.Links {
			c := mapNodes[id]
			if c.ID != prev && (int(c.MaxLevel) == lowestMax || int(c.MinLevel) < lowestMax+4) {
				candidates = append(candidates, c)
			}
		}
	}
	if len(candidates) == 0 {
		for _, id := range n.Links {
			if c := mapNodes[id]; c.ID != prev {
				candidates = append(candidates, c)
			}
		}
	}

	next := candidates[pick(rng, len(candidates))]
	return next.ID, next.Pos, true
}

// RandomNode returns a uniformly random node of mapID.
func (g *Graph) RandomNode(mapID uint32, rng Rand) (uint32, Position, bool) {
	ids := g.sorted[mapID]
	if len(ids) == 0 {
		return 0, Position{}, false
	}
	n := g.nodes[mapID][ids[pick(rng, len(ids))]]
	return n.ID, n.Pos, true
}

// RandomMap returns a uniformly random map that has nodes.
func (g *Graph) RandomMap(rng Rand) (uint32, bool) {
	if len(g.maps) == 0 {
		return 0, false
	}
	return g.maps[pick(rng, len(g.maps))], true
}

func pick(rng Rand, n int) int {
	if n <= 1 || rng == nil {
		return 0
	}
	return rng.Intn(n)
}
