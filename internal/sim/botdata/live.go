package botdata

import (
	"log"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LiveRef identifies a bot currently present in the world.
type LiveRef struct {
	Entry uint32 `json:"entry"`
	GUID  uint64 `json:"guid"`
	Name  string `json:"name"`
}

// Locales resolves localized creature names.
type Locales interface {
	LocaleName(entry uint32, locale string) (string, bool)
}

// RecordSource is the read side of the registry used for owner lookups.
type RecordSource interface {
	SelectRecord(entry uint32) (Record, bool)
}

// LiveIndex tracks the spawned bots. Registration order is preserved.
type LiveIndex struct {
	mu   sync.RWMutex
	bots []LiveRef

	locales Locales
	logger  *log.Logger
	notify  Notifier
}

func NewLiveIndex(locales Locales, logger *log.Logger, notify Notifier) *LiveIndex {
	if logger == nil {
		logger = log.Default()
	}
	return &LiveIndex{locales: locales, logger: logger, notify: notify}
}

func (l *LiveIndex) emit(kind string, entry uint32, fields map[string]any) {
	if l.notify != nil {
		l.notify.Notify(kind, entry, fields)
	}
}

// Register adds a spawned bot. A second registration of the same entry or guid is
// logged and ignored.
func (l *LiveIndex) Register(ref LiveRef) bool {
	l.mu.Lock()
	for _, b := range l.bots {
		if b.Entry == ref.Entry || b.GUID == ref.GUID {
			l.mu.Unlock()
			l.logger.Printf("botdata: Register: bot %d (guid %d) already registered", ref.Entry, ref.GUID)
			return false
		}
	}
	l.bots = append(l.bots, ref)
	l.mu.Unlock()

	l.emit(EventRegistered, ref.Entry, map[string]any{"guid": ref.GUID, "name": ref.Name})
	return true
}

func (l *LiveIndex) Unregister(entry uint32) bool {
	l.mu.Lock()
	for i, b := range l.bots {
		if b.Entry != entry {
			continue
		}
		l.bots = append(l.bots[:i], l.bots[i+1:]...)
		l.mu.Unlock()
		l.emit(EventUnregistered, entry, map[string]any{"guid": b.GUID})
		return true
	}
	l.mu.Unlock()
	l.logger.Printf("botdata: Unregister: bot %d is not registered", entry)
	return false
}

func (l *LiveIndex) Find(entry uint32) (LiveRef, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.bots {
		if b.Entry == entry {
			return b, true
		}
	}
	return LiveRef{}, false
}

// LiveGUID returns the world guid of a spawned bot, 0 when absent.
func (l *LiveIndex) LiveGUID(entry uint32) uint64 {
	if b, ok := l.Find(entry); ok {
		return b.GUID
	}
	return 0
}

// FindByName matches case-insensitively. When locale has a translation for a bot
// that name is compared instead of the base name.
func (l *LiveIndex) FindByName(name, locale string) (LiveRef, bool) {
	tag := language.Und
	if locale != "" {
		tag = language.Make(locale)
	}
	lower := cases.Lower(tag)
	want := lower.String(name)

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.bots {
		candidate := b.Name
		if locale != "" && l.locales != nil {
			if n, ok := l.locales.LocaleName(b.Entry, locale); ok && n != "" {
				candidate = n
			}
		}
		if lower.String(candidate) == want {
			return b, true
		}
	}
	return LiveRef{}, false
}

func (l *LiveIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.bots)
}

func (l *LiveIndex) Snapshot() []LiveRef {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LiveRef, len(l.bots))
	copy(out, l.bots)
	return out
}

// GUIDsByOwner returns the world guids of spawned bots owned by owner.
func (l *LiveIndex) GUIDsByOwner(owner uint32, records RecordSource) []uint64 {
	var out []uint64
	for _, b := range l.Snapshot() {
		rec, ok := records.SelectRecord(b.Entry)
		if ok && rec.Owner == owner {
			out = append(out, b.GUID)
		}
	}
	return out
}
