package wander

type levelRange struct{ min, max uint8 }

// Character level ranges of the overworld zones on maps 0 and 1.
var zoneLevels = map[uint32]levelRange{
	1:    {1, 14},  // Dun Morogh
	12:   {1, 14},  // Elwynn Forest
	14:   {1, 14},  // Durotar
	85:   {1, 14},  // Tirisfal Glades
	141:  {1, 14},  // Teldrassil
	215:  {1, 14},  // Mulgore
	3430: {1, 14},  // Eversong Woods
	3524: {1, 14},  // Azuremyst Isle
	38:   {8, 24},  // Loch Modan
	40:   {8, 24},  // Westfall
	130:  {8, 24},  // Silverpine Woods
	148:  {8, 24},  // Darkshore
	3433: {8, 24},  // Ghostlands
	3525: {8, 24},  // Bloodmyst Isle
	17:   {8, 30},  // Barrens
	44:   {13, 30}, // Redridge Mountains
	406:  {13, 32}, // Stonetalon Mountains
	10:   {18, 34}, // Duskwood
	11:   {18, 34}, // Wetlands
	267:  {18, 34}, // Hillsbrad Foothills
	331:  {18, 34}, // Ashenvale
	400:  {23, 40}, // Thousand Needles
	36:   {28, 44}, // Alterac Mountains
	45:   {28, 44}, // Arathi Highlands
	405:  {28, 44}, // Desolace
	33:   {28, 50}, // Stranglethorn Valley
	3:    {33, 50}, // Badlands
	8:    {33, 50}, // Swamp of Sorrows
	15:   {33, 50}, // Dustwallow Marsh
	47:   {38, 54}, // Hinterlands
	357:  {38, 54}, // Feralas
	440:  {38, 54}, // Tanaris
	4:    {43, 60}, // Blasted Lands
	16:   {43, 60}, // Azshara
	51:   {43, 60}, // Searing Gorge
	490:  {45, 60}, // Un'Goro Crater
	361:  {46, 60}, // Felwood
	28:   {48, 60}, // Western Plaguelands
	46:   {48, 60}, // Burning Steppes
	41:   {50, 60}, // Deadwind Pass
	1377: {53, 60}, // Silithus
	139:  {53, 60}, // Eastern Plaguelands
	618:  {53, 60}, // Winterspring
}

// ZoneLevels returns the level range of a zone. Unknown zones return 0, 0.
func ZoneLevels(zoneID uint32) (uint8, uint8) {
	r, ok := zoneLevels[zoneID]
	if !ok {
		return 0, 0
	}
	return r.min, r.max
}
