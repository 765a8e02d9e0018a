package botdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Seed file names inside a seed directory. Every file is optional.
const (
	SeedFileWanderNodes = "wander_nodes.json"
	SeedFileExtras      = "bot_extras.json"
	SeedFileAppearance  = "bot_appearance.json"
	SeedFileBots        = "bots.json"
	SeedFileGroups      = "groups.json"
)

type SeedResult struct {
	WanderNodes int `json:"wander_nodes"`
	Extras      int `json:"extras"`
	Appearance  int `json:"appearance"`
	Bots        int `json:"bots"`
	Groups      int `json:"groups"`
	Members     int `json:"members"`
}

type seedGroups struct {
	Groups  []GroupRow       `json:"groups"`
	Members []GroupMemberRow `json:"members"`
}

// SeedFromDir loads the JSON seed files found in dir into their tables.
func (s *SQLiteStore) SeedFromDir(ctx context.Context, dir string) (SeedResult, error) {
	var res SeedResult

	var nodes []WanderNodeRow
	if ok, err := readSeed(dir, SeedFileWanderNodes, &nodes); err != nil {
		return res, err
	} else if ok {
		if err := s.SeedWanderNodes(ctx, nodes); err != nil {
			return res, fmt.Errorf("%s: %w", SeedFileWanderNodes, err)
		}
		res.WanderNodes = len(nodes)
	}

	var extras []ExtrasRow
	if ok, err := readSeed(dir, SeedFileExtras, &extras); err != nil {
		return res, err
	} else if ok {
		if err := s.SeedExtras(ctx, extras); err != nil {
			return res, fmt.Errorf("%s: %w", SeedFileExtras, err)
		}
		res.Extras = len(extras)
	}

	var appearance []AppearanceRow
	if ok, err := readSeed(dir, SeedFileAppearance, &appearance); err != nil {
		return res, err
	} else if ok {
		if err := s.SeedAppearance(ctx, appearance); err != nil {
			return res, fmt.Errorf("%s: %w", SeedFileAppearance, err)
		}
		res.Appearance = len(appearance)
	}

	var bots []BotRow
	if ok, err := readSeed(dir, SeedFileBots, &bots); err != nil {
		return res, err
	} else if ok {
		if err := s.SeedBots(ctx, bots); err != nil {
			return res, fmt.Errorf("%s: %w", SeedFileBots, err)
		}
		res.Bots = len(bots)
	}

	var groups seedGroups
	if ok, err := readSeed(dir, SeedFileGroups, &groups); err != nil {
		return res, err
	} else if ok {
		if err := s.SeedGroups(ctx, groups.Groups, groups.Members); err != nil {
			return res, fmt.Errorf("%s: %w", SeedFileGroups, err)
		}
		res.Groups, res.Members = len(groups.Groups), len(groups.Members)
	}

	s.logger.Printf(">> Seeded %d wander nodes, %d extras, %d appearances, %d bots, %d groups (%d members) from %s",
		res.WanderNodes, res.Extras, res.Appearance, res.Bots, res.Groups, res.Members, dir)
	return res, nil
}

func readSeed(dir, name string, out any) (bool, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return true, nil
}
