package world

import (
	"sort"

	"npcbots.ai/internal/sim/botdata"
)

type Group struct {
	GUID       uint32                `json:"guid"`
	LeaderGUID uint32                `json:"leader_guid"`
	Bots       []botdata.GroupMember `json:"bots"`
}

// AddGroup registers a player group; an existing group keeps its members.
func (w *World) AddGroup(guid, leader uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if g, ok := w.groups[guid]; ok {
		g.LeaderGUID = leader
		return
	}
	w.groups[guid] = &Group{GUID: guid, LeaderGUID: leader}
}

// AddBotMember adds a bot to a group. It reports false for an unknown group.
func (w *World) AddBotMember(groupGUID uint32, m botdata.GroupMember) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.groups[groupGUID]
	if !ok {
		return false
	}
	for _, b := range g.Bots {
		if b.Entry == m.Entry {
			return true
		}
	}
	g.Bots = append(g.Bots, m)
	return true
}

func (w *World) Groups() []Group {
	w.mu.RLock()
	out := make([]Group, 0, len(w.groups))
	for _, g := range w.groups {
		cp := *g
		cp.Bots = append([]botdata.GroupMember(nil), g.Bots...)
		out = append(out, cp)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out
}
