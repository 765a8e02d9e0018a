package wander

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
)

var (
	ErrEmptyTable = errors.New("wander: node table is empty")
	ErrEmptyMap   = errors.New("wander: map has no connected nodes")
)

// DefaultConnectionDist is the planar distance under which two nodes are linked.
const DefaultConnectionDist = 1400.0

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	O float64 `json:"o"`
}

func (p Position) Dist2D(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Row is one source waypoint.
type Row struct {
	ID     uint32
	MapID  uint32
	ZoneID uint32
	Pos    Position
	Name   string
}

type Node struct {
	ID       uint32   `json:"id"`
	MapID    uint32   `json:"map_id"`
	ZoneID   uint32   `json:"zone_id"`
	Pos      Position `json:"pos"`
	MinLevel uint8    `json:"min_level"`
	MaxLevel uint8    `json:"max_level"`
	Name     string   `json:"name"`
	// Links holds neighbor ids on the same map, ascending.
	Links []uint32 `json:"links"`
}

type NodeRef struct {
	MapID uint32 `json:"map_id"`
	ID    uint32 `json:"id"`
}

type Stats struct {
	Nodes          int     `json:"nodes"`
	Maps           int     `json:"maps"`
	Connections    int     `json:"connections"`
	DuplicateLinks int     `json:"duplicate_links"`
	Tops           int     `json:"tops"`
	IsolatedPairs  int     `json:"isolated_pairs"`
	MinDist        float64 `json:"min_dist"`
	MaxDist        float64 `json:"max_dist"`
}

// Graph is built once and read-only afterwards.
type Graph struct {
	nodes  map[uint32]map[uint32]*Node
	maps   []uint32
	sorted map[uint32][]uint32
	tops   []NodeRef
	stats  Stats
}

type Options struct {
	// Maps lists the supported world maps; rows on other maps are ignored.
	Maps    []uint32
	MaxDist float64
	// Levels resolves a zone's level range. Nil uses ZoneLevels.
	Levels func(zoneID uint32) (uint8, uint8)
	Logger *log.Logger
}

func Build(rows []Row, opts Options) (*Graph, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}
	if opts.MaxDist <= 0 {
		opts.MaxDist = DefaultConnectionDist
	}
	if opts.Levels == nil {
		opts.Levels = ZoneLevels
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	supported := make(map[uint32]bool, len(opts.Maps))
	for _, m := range opts.Maps {
		supported[m] = true
	}

	g := &Graph{
		nodes:  map[uint32]map[uint32]*Node{},
		sorted: map[uint32][]uint32{},
	}
	for _, r := range rows {
		if !supported[r.MapID] {
			continue
		}
		lo, hi := opts.Levels(r.ZoneID)
		if lo == 0 || hi == 0 {
			continue
		}
		if g.nodes[r.MapID] == nil {
			g.nodes[r.MapID] = map[uint32]*Node{}
		}
		g.nodes[r.MapID][r.ID] = &Node{
			ID:       r.ID,
			MapID:    r.MapID,
			ZoneID:   r.ZoneID,
			Pos:      r.Pos,
			MinLevel: lo,
			MaxLevel: hi,
			Name:     r.Name,
		}
	}

	st := Stats{MinDist: math.Inf(1)}
	for _, mapNodes := range g.nodes {
		ids := sortedIDs(mapNodes)
		for _, a := range ids {
			na := mapNodes[a]
			for _, b := range ids {
				if a == b {
					continue
				}
				nb := mapNodes[b]
				d := na.Pos.Dist2D(nb.Pos)
				if d >= opts.MaxDist {
					continue
				}
				st.MinDist = math.Min(st.MinDist, d)
				st.MaxDist = math.Max(st.MaxDist, d)
				na.Links = append(na.Links, b)
				// b was already visited and linked back to a.
				if b < a {
					st.DuplicateLinks++
				} else {
					st.Connections++
				}
			}
		}
	}

	for mapID, mapNodes := range g.nodes {
		for id, n := range mapNodes {
			if len(n.Links) == 0 {
				delete(mapNodes, id)
			}
		}
		ids := sortedIDs(mapNodes)
		g.sorted[mapID] = ids
		for _, id := range ids {
			n := mapNodes[id]
			if len(n.Links) != 1 {
				continue
			}
			g.tops = append(g.tops, NodeRef{MapID: mapID, ID: id})
			other := mapNodes[n.Links[0]]
			if other != nil && len(other.Links) == 1 && other.ID > id {
				st.IsolatedPairs++
				logger.Printf("wander: node pair %d-%d on map %d is isolated", id, other.ID, mapID)
			}
		}
		st.Nodes += len(mapNodes)
	}

	for _, m := range opts.Maps {
		if len(g.nodes[m]) == 0 {
			return nil, fmt.Errorf("%w: map %d", ErrEmptyMap, m)
		}
	}
	for m := range g.nodes {
		g.maps = append(g.maps, m)
	}
	sort.Slice(g.maps, func(i, j int) bool { return g.maps[i] < g.maps[j] })
	sort.Slice(g.tops, func(i, j int) bool {
		if g.tops[i].MapID != g.tops[j].MapID {
			return g.tops[i].MapID < g.tops[j].MapID
		}
		return g.tops[i].ID < g.tops[j].ID
	})

	if math.IsInf(st.MinDist, 1) {
		st.MinDist = 0
	}
	st.Maps = len(g.maps)
	st.Tops = len(g.tops)
	g.stats = st

	logger.Printf(">> Generated %d bot wander nodes on %d maps (total %d ribs, %d tops)", st.Nodes, st.Maps, st.Connections, st.Tops)
	logger.Printf("Nodes distances: min = %.3f, max = %.3f", st.MinDist, st.MaxDist)
	return g, nil
}

func sortedIDs(m map[uint32]*Node) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *Graph) Stats() Stats { return g.stats }

// Maps returns the map ids that have nodes, ascending.
func (g *Graph) Maps() []uint32 {
	return append([]uint32(nil), g.maps...)
}

func (g *Graph) Tops() []NodeRef {
	return append([]NodeRef(nil), g.tops...)
}

// Node returns a copy of a node.
func (g *Graph) Node(mapID, nodeID uint32) (Node, bool) {
	n := g.node(mapID, nodeID)
	if n == nil {
		return Node{}, false
	}
	out := *n
	out.Links = append([]uint32(nil), n.Links...)
	return out, true
}

func (g *Graph) node(mapID, nodeID uint32) *Node {
	if g == nil {
		return nil
	}
	return g.nodes[mapID][nodeID]
}

// Nodes returns the node ids of a map, ascending.
func (g *Graph) Nodes(mapID uint32) []uint32 {
	return append([]uint32(nil), g.sorted[mapID]...)
}

func (g *Graph) NodePosition(mapID, nodeID uint32) (Position, bool) {
	n := g.node(mapID, nodeID)
	if n == nil {
		return Position{}, false
	}
	return n.Pos, true
}

// NodeName returns the node's display name, or "" for an unknown node.
func (g *Graph) NodeName(mapID, nodeID uint32) string {
	n := g.node(mapID, nodeID)
	if n == nil {
		return ""
	}
	return n.Name
}
