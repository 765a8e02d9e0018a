package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ShippedCatalogs(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Digest() == "" {
		t.Fatalf("empty digest")
	}

	kara, ok := c.CreatureTemplate(70001)
	if !ok || kara.Name != "Kara" {
		t.Fatalf("template 70001: %+v ok=%v", kara, ok)
	}
	if name, ok := c.LocaleName(70001, "ruRU"); !ok || name != "Кара" {
		t.Fatalf("locale: %q ok=%v", name, ok)
	}
	if eq, ok := c.EquipmentInfo(70001, 1); !ok || eq.Items[0] == 0 {
		t.Fatalf("equipment: %+v ok=%v", eq, ok)
	}
	if f, ok := c.RaceFaction(11); !ok || f != 1629 {
		t.Fatalf("race faction: %d ok=%v", f, ok)
	}

	dm, ok := c.Map(36)
	if !ok || !dm.IsDungeon() || !dm.Instanceable() || dm.MaxPlayers != 5 {
		t.Fatalf("map 36: %+v", dm)
	}
	if ek, _ := c.Map(0); !ek.IsWorldMap() || ek.Instanceable() {
		t.Fatalf("map 0: %+v", ek)
	}

	bs := c.BaseStatsFor(20, 1)
	if bs.Level != 20 || bs.BaseHealth[0] <= 1 {
		t.Fatalf("base stats: %+v", bs)
	}
	if missing := c.BaseStatsFor(120, 1); missing.BaseHealth != DefaultBaseStats.BaseHealth {
		t.Fatalf("missing base stats should fall back: %+v", missing)
	}

	sp, ok := c.SpawnByEntry(70001)
	if !ok || sp.MapID != 0 || sp.ZoneID != 12 {
		t.Fatalf("spawn: %+v ok=%v", sp, ok)
	}
	onMap := c.SpawnsOnMap(36)
	if len(onMap) == 0 {
		t.Fatalf("no spawns on map 36")
	}
	for i := 1; i < len(onMap); i++ {
		if onMap[i-1].GUID >= onMap[i].GUID {
			t.Fatalf("spawns not sorted: %+v", onMap)
		}
	}
	for _, s := range onMap {
		if s.MapID != 36 {
			t.Fatalf("spawn from other map: %+v", s)
		}
	}
}

func TestLoad_OptionalFilesMayBeMissing(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("creature_templates.json", `[{"entry":1,"name":"a","min_level":1,"max_level":2}]`)
	write("base_stats.json", `[{"level":1,"class":1,"base_health":[10,10,10]}]`)
	write("maps.json", `[{"id":0,"name":"w","kind":"WORLD"}]`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.SpawnByEntry(1); ok {
		t.Fatalf("unexpected spawn")
	}
	if _, ok := c.EquipmentInfo(1, 1); ok {
		t.Fatalf("unexpected equipment")
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"creature_templates.json": `[{"entry":1,"min_level":5,"max_level":2}]`,
		"maps.json":               `[{"id":0,"kind":"PLANE"}]`,
		"base_stats.json":         `[{"level":0,"class":1}]`,
	}
	valid := map[string]string{
		"creature_templates.json": `[{"entry":1,"min_level":1,"max_level":1}]`,
		"base_stats.json":         `[{"level":1,"class":1}]`,
		"maps.json":               `[{"id":0,"kind":"WORLD"}]`,
	}
	for bad, body := range cases {
		dir := t.TempDir()
		for name, v := range valid {
			if name == bad {
				v = body
			}
			if err := os.WriteFile(filepath.Join(dir, name), []byte(v), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
		if _, err := Load(dir); err == nil {
			t.Fatalf("%s: expected error", bad)
		}
	}
}

func TestBaseStatsGenerate(t *testing.T) {
	b := BaseStats{BaseHealth: [3]uint32{100, 200, 300}, BaseMana: 50, BaseArmor: 10, BaseDamage: [3]float64{1, 2, 3}}
	tpl := CreatureTemplate{Expansion: 5, ModHealth: 1.5, ModMana: 0}
	if got := b.GenerateHealth(tpl); got != 450 {
		t.Fatalf("health=%d", got)
	}
	if got := b.GenerateMana(tpl); got != 50 {
		t.Fatalf("mana=%d", got)
	}
	if got := b.GenerateBaseDamage(tpl); got != 3 {
		t.Fatalf("damage=%v", got)
	}
	if (BaseStats{}).GenerateMana(tpl) != 0 {
		t.Fatalf("zero base mana should stay zero")
	}
}
