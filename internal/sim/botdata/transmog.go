package botdata

import "npcbots.ai/internal/persistence/botdb"

// SetTransmog sets one cosmetic override slot, creating the bot's transmog data
// if needed. persist writes the slot through to the backend.
func (r *Registry) SetTransmog(entry uint32, slot uint8, itemID, fakeID uint32, persist bool) bool {
	if int(slot) >= TransmogSlots {
		r.logger.Printf("botdata: SetTransmog: slot %d out of range for entry %d", slot, entry)
		return false
	}
	r.mu.Lock()
	t, ok := r.transmogs[entry]
	if !ok {
		t = &Transmog{}
		r.transmogs[entry] = t
	}
	t[slot] = TransmogPair{ItemID: itemID, FakeID: fakeID}
	r.mu.Unlock()

	if persist {
		r.execute(botdb.StmtReplaceTransmog, entry, slot, itemID, fakeID)
	}
	return true
}

// ResetTransmog clears every slot. With persist the non-empty slots are zeroed in
// the backend in one transaction.
func (r *Registry) ResetTransmog(entry uint32, persist bool) {
	r.mu.Lock()
	t, ok := r.transmogs[entry]
	if !ok {
		r.mu.Unlock()
		return
	}
	tx := botdb.NewTx()
	for i, p := range t {
		if p.ItemID == 0 && p.FakeID == 0 {
			continue
		}
		tx.Append(botdb.StmtReplaceTransmog, entry, uint8(i), uint32(0), uint32(0))
	}
	*t = Transmog{}
	r.mu.Unlock()

	if persist {
		r.commit(tx)
	}
}
