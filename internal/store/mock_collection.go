// ABOUTME: Mock Collection implementation for testing and demo serving
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MockCollection is an in-memory Collection implementation.
type MockCollection struct {
	mu     sync.RWMutex
	decks  map[int64]*mockDeck
	types  map[int64]*mockNoteType
	notes  map[int64]*mockNote
	cards  map[int64]*mockCard
	nextID int64
}

type mockDeck struct {
	id          int64
	name        string
	description string
	filtered    bool
}

type mockNoteType struct {
	id        int64
	name      string
	fields    []string
	templates []CardTemplate
}

type mockNote struct {
	id        int64
	typeID    int64
	fields    map[string]string
	tags      []string
}

type mockCard struct {
	id         int64
	noteID     int64
	deckID     int64
	typ        int
	queue      int
	due        int
	interval   int
	factor     int
	reps       int
	lapses     int
	lastReview int64
}

// NewMockCollection creates an empty MockCollection.
func NewMockCollection() *MockCollection {
	return &MockCollection{
		decks: make(map[int64]*mockDeck),
		types: make(map[int64]*mockNoteType),
		notes: make(map[int64]*mockNote),
		cards: make(map[int64]*mockCard),
	}
}

// id allocates the next entity id. Caller must hold mu.
func (m *MockCollection) id() int64 {
	m.nextID++
	return m.nextID
}

// deckByName finds a deck by exact name. Caller must hold mu.
func (m *MockCollection) deckByName(name string) *mockDeck {
	for _, d := range m.decks {
		if d.name == name {
			return d
		}
	}
	return nil
}

// typeByName finds a note type by exact name. Caller must hold mu.
func (m *MockCollection) typeByName(name string) *mockNoteType {
	for _, t := range m.types {
		if t.name == name {
			return t
		}
	}
	return nil
}

// cardsOf returns the cards of a note sorted by id. Caller must hold mu.
func (m *MockCollection) cardsOf(noteID int64) []*mockCard {
	var cards []*mockCard
	for _, c := range m.cards {
		if c.noteID == noteID {
			cards = append(cards, c)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].id < cards[j].id })
	return cards
}

// deckCardCount counts the cards directly in a deck (subdecks excluded).
// Caller must hold mu.
func (m *MockCollection) deckCardCount(deckID int64) int {
	n := 0
	for _, c := range m.cards {
		if c.deckID == deckID {
			n++
		}
	}
	return n
}

// ListDecks returns all decks sorted by name.
func (m *MockCollection) ListDecks(ctx context.Context) ([]*Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	decks := make([]*Deck, 0, len(m.decks))
	for _, d := range m.decks {
		decks = append(decks, &Deck{
			ID:        d.id,
			Name:      d.name,
			CardCount: m.deckCardCount(d.id),
			Filtered:  d.filtered,
		})
	}
	sort.Slice(decks, func(i, j int) bool { return decks[i].Name < decks[j].Name })
	return decks, nil
}

// GetDeckInfo returns a deck with per-state card counts.
func (m *MockCollection) GetDeckInfo(ctx context.Context, name string) (*DeckInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := m.deckByName(name)
	if d == nil {
		return nil, ErrDeckNotFound
	}

	info := &DeckInfo{
		ID:          d.id,
		Name:        d.name,
		Description: d.description,
		Filtered:    d.filtered,
	}
	for _, c := range m.cards {
		if c.deckID != d.id {
			continue
		}
		info.CardCount++
		switch c.typ {
		case CardTypeNew:
			info.NewCount++
		case CardTypeLearning:
			info.LearningCount++
		case CardTypeReview:
			info.ReviewCount++
		}
	}
	return info, nil
}

// CreateDeck creates the deck and any missing parent decks.
func (m *MockCollection) CreateDeck(ctx context.Context, name string) (*Deck, error) {
	if name == "" {
		return nil, fmt.Errorf("deck name must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Create each level of the hierarchy that doesn't exist yet.
	segments := strings.Split(name, "::")
	var leaf *mockDeck
	for i := range segments {
		path := strings.Join(segments[:i+1], "::")
		d := m.deckByName(path)
		if d == nil {
			d = &mockDeck{id: m.id(), name: path}
			m.decks[d.id] = d
		}
		leaf = d
	}

	return &Deck{
		ID:        leaf.id,
		Name:      leaf.name,
		CardCount: m.deckCardCount(leaf.id),
		Filtered:  leaf.filtered,
	}, nil
}

// RenameDeck renames a deck and all of its subdecks.
func (m *MockCollection) RenameDeck(ctx context.Context, name, newName string) error {
	if newName == "" {
		return fmt.Errorf("deck name must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.deckByName(name)
	if d == nil {
		return ErrDeckNotFound
	}

	prefix := name + "::"
	for _, deck := range m.decks {
		if deck.name == name {
			deck.name = newName
		} else if strings.HasPrefix(deck.name, prefix) {
			deck.name = newName + "::" + strings.TrimPrefix(deck.name, prefix)
		}
	}
	return nil
}

// SetDeckDescription updates a deck's description.
func (m *MockCollection) SetDeckDescription(ctx context.Context, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.deckByName(name)
	if d == nil {
		return ErrDeckNotFound
	}
	d.description = description
	return nil
}

// DeleteDeck removes a deck and its subdecks. The returned count covers only
// cards directly in the named deck, matching the host application's report.
func (m *MockCollection) DeleteDeck(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.deckByName(name)
	if d == nil {
		return 0, ErrDeckNotFound
	}
	cardsDeleted := m.deckCardCount(d.id)

	// The deck and every subdeck go away together.
	doomed := map[int64]bool{d.id: true}
	prefix := name + "::"
	for _, deck := range m.decks {
		if strings.HasPrefix(deck.name, prefix) {
			doomed[deck.id] = true
		}
	}

	touched := map[int64]bool{}
	for id, c := range m.cards {
		if doomed[c.deckID] {
			touched[c.noteID] = true
			delete(m.cards, id)
		}
	}
	for id := range doomed {
		delete(m.decks, id)
	}
	// Notes that lost their last card go away too.
	for noteID := range touched {
		if len(m.cardsOf(noteID)) == 0 {
			delete(m.notes, noteID)
		}
	}
	return cardsDeleted, nil
}

// SearchNotes evaluates a query against all notes, returning up to limit
// matches ordered by note id.
func (m *MockCollection) SearchNotes(ctx context.Context, query string, limit int) ([]*Note, error) {
	if limit <= 0 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	q := parseSearchQuery(query)

	ids := make([]int64, 0, len(m.notes))
	for id := range m.notes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	notes := make([]*Note, 0, limit)
	for _, id := range ids {
		n := m.notes[id]
		var deckNames []string
		for _, c := range m.cardsOf(id) {
			if d, ok := m.decks[c.deckID]; ok {
				deckNames = append(deckNames, d.name)
			}
		}
		if !q.matches(n.fields, n.tags, deckNames) {
			continue
		}
		notes = append(notes, m.noteRecord(n))
		if len(notes) == limit {
			break
		}
	}
	return notes, nil
}

// noteRecord builds the external Note record. Caller must hold mu.
func (m *MockCollection) noteRecord(n *mockNote) *Note {
	modelName := "Unknown"
	if t, ok := m.types[n.typeID]; ok {
		modelName = t.name
	}
	fields := make(map[string]string, len(n.fields))
	for k, v := range n.fields {
		fields[k] = v
	}
	tags := make([]string, len(n.tags))
	copy(tags, n.tags)
	return &Note{
		ID:        n.id,
		ModelName: modelName,
		Fields:    fields,
		Tags:      tags,
		CardCount: len(m.cardsOf(n.id)),
	}
}

// GetNote retrieves a note by id.
func (m *MockCollection) GetNote(ctx context.Context, id int64) (*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	return m.noteRecord(n), nil
}

// CardsForNote returns all cards of a note ordered by id.
func (m *MockCollection) CardsForNote(ctx context.Context, noteID int64) ([]*Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.notes[noteID]; !ok {
		return nil, ErrNoteNotFound
	}

	var cards []*Card
	for _, c := range m.cardsOf(noteID) {
		deckName := ""
		if d, ok := m.decks[c.deckID]; ok {
			deckName = d.name
		}
		cards = append(cards, &Card{
			ID:         c.id,
			NoteID:     c.noteID,
			DeckName:   deckName,
			Type:       c.typ,
			Queue:      c.queue,
			Due:        c.due,
			Interval:   c.interval,
			EaseFactor: c.factor,
			Reviews:    c.reps,
			Lapses:     c.lapses,
			LastReview: c.lastReview,
		})
	}
	return cards, nil
}

// CreateNote adds a note of the named type to the named deck, one card per
// template. Fields not declared by the note type are dropped.
func (m *MockCollection) CreateNote(ctx context.Context, modelName string, fields map[string]string, deckName string, tags []string) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.typeByName(modelName)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoteTypeNotFound, modelName)
	}
	d := m.deckByName(deckName)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeckNotFound, deckName)
	}

	n := &mockNote{
		id:     m.id(),
		typeID: t.id,
		fields: make(map[string]string, len(t.fields)),
	}
	for _, name := range t.fields {
		if v, ok := fields[name]; ok {
			n.fields[name] = v
		} else {
			n.fields[name] = ""
		}
	}
	if len(tags) > 0 {
		n.tags = append([]string(nil), tags...)
	}
	m.notes[n.id] = n

	for range t.templates {
		c := &mockCard{id: m.id(), noteID: n.id, deckID: d.id, factor: 2500}
		m.cards[c.id] = c
	}
	return m.noteRecord(n), nil
}

// UpdateNote replaces the given fields and, when tags is non-nil, the tags.
func (m *MockCollection) UpdateNote(ctx context.Context, id int64, fields map[string]string, tags []string) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}

	for name, value := range fields {
		// Only fields the note already has (i.e. its type declares) stick.
		if _, ok := n.fields[name]; ok {
			n.fields[name] = value
		}
	}
	if tags != nil {
		n.tags = append([]string(nil), tags...)
	}
	return m.noteRecord(n), nil
}

// DeleteNote removes a note and all of its cards.
func (m *MockCollection) DeleteNote(ctx context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[id]; !ok {
		return 0, ErrNoteNotFound
	}

	deleted := 0
	for cid, c := range m.cards {
		if c.noteID == id {
			delete(m.cards, cid)
			deleted++
		}
	}
	delete(m.notes, id)
	return deleted, nil
}

// ListNoteTypes returns all note types sorted by name.
func (m *MockCollection) ListNoteTypes(ctx context.Context) ([]*NoteType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]*NoteType, 0, len(m.types))
	for _, t := range m.types {
		types = append(types, m.noteTypeRecord(t))
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

// noteTypeRecord builds the external NoteType record.
func (m *MockCollection) noteTypeRecord(t *mockNoteType) *NoteType {
	fields := make([]string, len(t.fields))
	copy(fields, t.fields)
	templates := make([]string, 0, len(t.templates))
	for _, tpl := range t.templates {
		templates = append(templates, tpl.Name)
	}
	return &NoteType{
		ID:            t.id,
		Name:          t.name,
		Fields:        fields,
		Templates:     templates,
		FieldCount:    len(fields),
		TemplateCount: len(templates),
	}
}

// CreateNoteType adds a new note type.
func (m *MockCollection) CreateNoteType(ctx context.Context, name string, fields []string, templates []CardTemplate) (*NoteType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.typeByName(name) != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNoteType, name)
	}

	t := &mockNoteType{
		id:        m.id(),
		name:      name,
		fields:    append([]string(nil), fields...),
		templates: append([]CardTemplate(nil), templates...),
	}
	m.types[t.id] = t
	return m.noteTypeRecord(t), nil
}

// ReviewStats reports scheduling counts for one deck or the whole collection.
func (m *MockCollection) ReviewStats(ctx context.Context, deckName string) (*ReviewStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var deckID int64 = -1
	if deckName != "" {
		d := m.deckByName(deckName)
		if d == nil {
			return nil, ErrDeckNotFound
		}
		deckID = d.id
	}

	stats := &ReviewStats{DeckName: deckName}
	if deckName == "" {
		stats.DeckName = "All Decks"
	}
	for _, c := range m.cards {
		if deckID >= 0 && c.deckID != deckID {
			continue
		}
		stats.TotalCards++
		switch c.typ {
		case CardTypeNew:
			stats.NewCards++
		case CardTypeLearning:
			stats.LearningCards++
		case CardTypeReview:
			stats.ReviewCards++
		}
		if c.interval >= MatureInterval {
			stats.MatureCards++
		}
	}
	return stats, nil
}

// Close is a no-op for the in-memory collection.
func (m *MockCollection) Close() error {
	return nil
}
