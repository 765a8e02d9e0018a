package botdb

import "npcbots.ai/internal/sim/wander"

// WanderRows converts creature_wander_nodes rows for the graph builder.
func WanderRows(rows []WanderNodeRow) []wander.Row {
	out := make([]wander.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, wander.Row{
			ID:     r.ID,
			MapID:  r.MapID,
			ZoneID: r.ZoneID,
			Pos:    wander.Position{X: r.X, Y: r.Y, Z: r.Z, O: r.O},
			Name:   r.Name,
		})
	}
	return out
}
