// ABOUTME: Tests for the SQLite Collection implementation
// ABOUTME: Covers deck hierarchy, note CRUD, search, stats and persistence

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCollection(t *testing.T) *SQLiteCollection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collection.db")
	col, err := NewSQLiteCollection(path)
	require.NoError(t, err)
	t.Cleanup(func() { col.Close() })
	return col
}

func seedBasicType(t *testing.T, col Collection) {
	t.Helper()
	_, err := col.CreateNoteType(context.Background(), "Basic", []string{"Front", "Back"}, []CardTemplate{
		{Name: "Card 1", QuestionFormat: "{{Front}}", AnswerFormat: "{{Back}}"},
	})
	require.NoError(t, err)
}

func TestSQLiteCreateDeckHierarchy(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()

	deck, err := col.CreateDeck(ctx, "Languages::Spanish::Verbs")
	require.NoError(t, err)
	assert.Equal(t, "Languages::Spanish::Verbs", deck.Name)
	assert.Equal(t, 0, deck.CardCount)

	decks, err := col.ListDecks(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(decks))
	for _, d := range decks {
		names = append(names, d.Name)
	}
	// Parents are created implicitly, listing is name-sorted.
	assert.Equal(t, []string{"Languages", "Languages::Spanish", "Languages::Spanish::Verbs"}, names)

	// Creating an existing deck is not an error.
	again, err := col.CreateDeck(ctx, "Languages::Spanish")
	require.NoError(t, err)
	assert.Equal(t, "Languages::Spanish", again.Name)
}

func TestSQLiteCreateDeckEmptyName(t *testing.T) {
	col := setupTestCollection(t)

	_, err := col.CreateDeck(context.Background(), "")
	require.Error(t, err)
}

func TestSQLiteDeckInfo(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	seedBasicType(t, col)

	_, err := col.CreateDeck(ctx, "Spanish")
	require.NoError(t, err)
	_, err = col.CreateNote(ctx, "Basic", map[string]string{"Front": "hola", "Back": "hello"}, "Spanish", nil)
	require.NoError(t, err)

	require.NoError(t, col.SetDeckDescription(ctx, "Spanish", "Core vocabulary"))

	info, err := col.GetDeckInfo(ctx, "Spanish")
	require.NoError(t, err)
	assert.Equal(t, "Spanish", info.Name)
	assert.Equal(t, "Core vocabulary", info.Description)
	assert.Equal(t, 1, info.CardCount)
	assert.Equal(t, 1, info.NewCount)
	assert.Equal(t, 0, info.ReviewCount)

	_, err = col.GetDeckInfo(ctx, "Nope")
	assert.ErrorIs(t, err, ErrDeckNotFound)
}

func TestSQLiteRenameDeckSubtree(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()

	_, err := col.CreateDeck(ctx, "Spanish::Verbs")
	require.NoError(t, err)

	require.NoError(t, col.RenameDeck(ctx, "Spanish", "Español"))

	_, err = col.GetDeckInfo(ctx, "Español::Verbs")
	assert.NoError(t, err)
	_, err = col.GetDeckInfo(ctx, "Spanish")
	assert.ErrorIs(t, err, ErrDeckNotFound)

	assert.ErrorIs(t, col.RenameDeck(ctx, "Missing", "X"), ErrDeckNotFound)
}

func TestSQLiteCreateNote(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	seedBasicType(t, col)

	_, err := col.CreateDeck(ctx, "Spanish")
	require.NoError(t, err)

	note, err := col.CreateNote(ctx, "Basic",
		map[string]string{"Front": "hola", "Back": "hello", "Bogus": "dropped"},
		"Spanish", []string{"vocabulary"})
	require.NoError(t, err)
	assert.Equal(t, "Basic", note.ModelName)
	assert.Equal(t, "hola", note.Fields["Front"])
	assert.NotContains(t, note.Fields, "Bogus")
	assert.Equal(t, []string{"vocabulary"}, note.Tags)
	assert.Equal(t, 1, note.CardCount)

	got, err := col.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, note.Fields, got.Fields)
	assert.Equal(t, note.Tags, got.Tags)

	cards, err := col.CardsForNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, note.ID, cards[0].NoteID)
	assert.Equal(t, "Spanish", cards[0].DeckName)
	assert.Equal(t, CardTypeNew, cards[0].Type)

	_, err = col.CreateNote(ctx, "Missing", nil, "Spanish", nil)
	assert.ErrorIs(t, err, ErrNoteTypeNotFound)
	_, err = col.CreateNote(ctx, "Basic", nil, "Missing", nil)
	assert.ErrorIs(t, err, ErrDeckNotFound)
}

func TestSQLiteCreateNoteMultipleTemplates(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()

	_, err := col.CreateNoteType(ctx, "Reversed", []string{"Front", "Back"}, []CardTemplate{
		{Name: "Card 1", QuestionFormat: "{{Front}}", AnswerFormat: "{{Back}}"},
		{Name: "Card 2", QuestionFormat: "{{Back}}", AnswerFormat: "{{Front}}"},
	})
	require.NoError(t, err)
	_, err = col.CreateDeck(ctx, "Spanish")
	require.NoError(t, err)

	note, err := col.CreateNote(ctx, "Reversed", map[string]string{"Front": "a", "Back": "b"}, "Spanish", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, note.CardCount)

	cards, err := col.CardsForNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestSQLiteUpdateNote(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	seedBasicType(t, col)

	_, err := col.CreateDeck(ctx, "Spanish")
	require.NoError(t, err)
	note, err := col.CreateNote(ctx, "Basic",
		map[string]string{"Front": "hola", "Back": "hello"},
		"Spanish", []string{"old"})
	require.NoError(t, err)

	// Field update with nil tags keeps existing tags.
	updated, err := col.UpdateNote(ctx, note.ID, map[string]string{"Back": "hi", "Bogus": "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", updated.Fields["Back"])
	assert.Equal(t, "hola", updated.Fields["Front"])
	assert.NotContains(t, updated.Fields, "Bogus")
	assert.Equal(t, []string{"old"}, updated.Tags)

	// Non-nil tags replace.
	updated, err = col.UpdateNote(ctx, note.ID, nil, []string{"new", "tags"})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "tags"}, updated.Tags)

	// Empty non-nil slice clears.
	updated, err = col.UpdateNote(ctx, note.ID, nil, []string{})
	require.NoError(t, err)
	assert.Empty(t, updated.Tags)

	_, err = col.UpdateNote(ctx, 99999, nil, nil)
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestSQLiteDeleteNote(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	seedBasicType(t, col)

	_, err := col.CreateDeck(ctx, "Spanish")
	require.NoError(t, err)
	note, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "x"}, "Spanish", nil)
	require.NoError(t, err)

	deleted, err := col.DeleteNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = col.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)
	_, err = col.DeleteNote(ctx, note.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)

	// Cards are gone with the note.
	info, err := col.GetDeckInfo(ctx, "Spanish")
	require.NoError(t, err)
	assert.Equal(t, 0, info.CardCount)
}

func TestSQLiteDeleteNoteOnFreshConnection(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	seedBasicType(t, col)

	_, err := col.CreateDeck(ctx, "Spanish")
	require.NoError(t, err)
	note, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "hola"}, "Spanish", nil)
	require.NoError(t, err)

	// Retire the pooled connection that ran the pragmas; the delete now runs
	// on a fresh connection where foreign_keys is off.
	col.db.SetMaxIdleConns(0)

	deleted, err := col.DeleteNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	var orphans int
	require.NoError(t, col.db.QueryRow(`SELECT COUNT(*) FROM cards WHERE note_id = ?`, note.ID).Scan(&orphans))
	assert.Zero(t, orphans, "no card rows may survive their note")

	info, err := col.GetDeckInfo(ctx, "Spanish")
	require.NoError(t, err)
	assert.Equal(t, 0, info.CardCount)
}

func TestSQLiteDeleteDeckSubtree(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	seedBasicType(t, col)

	_, err := col.CreateDeck(ctx, "Spanish::Verbs")
	require.NoError(t, err)
	parent, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "p"}, "Spanish", nil)
	require.NoError(t, err)
	child, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "c"}, "Spanish::Verbs", nil)
	require.NoError(t, err)

	// The count reports only the named deck's own cards.
	deleted, err := col.DeleteDeck(ctx, "Spanish")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = col.GetDeckInfo(ctx, "Spanish::Verbs")
	assert.ErrorIs(t, err, ErrDeckNotFound)
	_, err = col.GetNote(ctx, parent.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)
	_, err = col.GetNote(ctx, child.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)

	_, err = col.DeleteDeck(ctx, "Spanish")
	assert.ErrorIs(t, err, ErrDeckNotFound)
}

func TestSQLiteSearchNotes(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	require.NoError(t, SeedSampleData(ctx, col))

	// deck: includes subdecks.
	notes, err := col.SearchNotes(ctx, `deck:"Spanish"`, 50)
	require.NoError(t, err)
	require.Len(t, notes, 3)

	// tag: matches whole tags case-insensitively.
	notes, err = col.SearchNotes(ctx, "tag:Verified", 50)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "hola", notes[0].Fields["Front"])

	// Free text matches field values.
	notes, err = col.SearchNotes(ctx, "goodbye", 50)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "adiós", notes[0].Fields["Front"])

	// Clauses AND together.
	notes, err = col.SearchNotes(ctx, `deck:"Spanish" tag:vocabulary hello`, 50)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	// Empty query returns everything up to the limit.
	notes, err = col.SearchNotes(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestSQLiteReviewStats(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	seedBasicType(t, col)

	_, err := col.CreateDeck(ctx, "Spanish")
	require.NoError(t, err)
	for _, front := range []string{"uno", "dos", "tres"} {
		_, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": front}, "Spanish", nil)
		require.NoError(t, err)
	}

	// Promote two cards to review state, one of them mature.
	_, err = col.db.Exec(`UPDATE cards SET type = 2, ivl = 30 WHERE id = (SELECT MIN(id) FROM cards)`)
	require.NoError(t, err)
	_, err = col.db.Exec(`UPDATE cards SET type = 2, ivl = 10 WHERE id = (SELECT MAX(id) FROM cards)`)
	require.NoError(t, err)

	stats, err := col.ReviewStats(ctx, "Spanish")
	require.NoError(t, err)
	assert.Equal(t, "Spanish", stats.DeckName)
	assert.Equal(t, 3, stats.TotalCards)
	assert.Equal(t, 1, stats.NewCards)
	assert.Equal(t, 2, stats.ReviewCards)
	assert.Equal(t, 1, stats.MatureCards)

	all, err := col.ReviewStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "All Decks", all.DeckName)
	assert.Equal(t, 3, all.TotalCards)

	_, err = col.ReviewStats(ctx, "Missing")
	assert.ErrorIs(t, err, ErrDeckNotFound)
}

func TestSQLiteCreateNoteTypeDuplicate(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	seedBasicType(t, col)

	_, err := col.CreateNoteType(ctx, "Basic", []string{"A"}, nil)
	assert.ErrorIs(t, err, ErrDuplicateNoteType)
}

func TestSQLiteListNoteTypes(t *testing.T) {
	col := setupTestCollection(t)
	ctx := context.Background()
	require.NoError(t, SeedSampleData(ctx, col))

	types, err := col.ListNoteTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "Basic", types[0].Name)
	assert.Equal(t, []string{"Front", "Back"}, types[0].Fields)
	assert.Equal(t, 1, types[0].TemplateCount)
	assert.Equal(t, "Basic (and reversed card)", types[1].Name)
	assert.Equal(t, 2, types[1].TemplateCount)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.db")
	ctx := context.Background()

	col, err := NewSQLiteCollection(path)
	require.NoError(t, err)
	require.NoError(t, SeedSampleData(ctx, col))
	require.NoError(t, col.Close())

	col, err = NewSQLiteCollection(path)
	require.NoError(t, err)
	defer col.Close()

	decks, err := col.ListDecks(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, decks)

	notes, err := col.SearchNotes(ctx, "tag:verified", 50)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}
