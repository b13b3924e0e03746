// ABOUTME: Tests for the permission-gated service layer
// ABOUTME: Verifies check ordering, denial messages and result shapes

package anki

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankimcp/ankimcp/internal/permissions"
	"github.com/ankimcp/ankimcp/internal/store"
)

func newTestService(t *testing.T, policy string) (*Service, *store.MockCollection) {
	t.Helper()
	col := store.NewMockCollection()
	perms := permissions.Permissive()
	if policy != "" {
		var err error
		perms, err = permissions.ParseDocument([]byte(policy))
		require.NoError(t, err)
	}
	return NewService(col, perms), col
}

func seedCollection(t *testing.T, col store.Collection) {
	t.Helper()
	ctx := context.Background()
	_, err := col.CreateNoteType(ctx, "Basic", []string{"Front", "Back"}, []store.CardTemplate{
		{Name: "Card 1", QuestionFormat: "{{Front}}", AnswerFormat: "{{Back}}"},
	})
	require.NoError(t, err)
	for _, name := range []string{"Default", "Spanish", "Japanese"} {
		_, err := col.CreateDeck(ctx, name)
		require.NoError(t, err)
	}
}

func TestListDecksFiltersByPolicy(t *testing.T) {
	svc, col := newTestService(t, `
permissions:
  mode: allowlist
  protected_decks: []
  deck_permissions:
    allowlist: ["Spanish*"]
`)
	seedCollection(t, col)

	decks, err := svc.ListDecks(context.Background())
	require.NoError(t, err)
	require.Len(t, decks, 1)
	assert.Equal(t, "Spanish", decks[0].Name)
}

func TestGetDeckInfoRequiresRead(t *testing.T) {
	svc, col := newTestService(t, `
permissions:
  mode: allowlist
  protected_decks: []
  deck_permissions:
    allowlist: ["Spanish"]
`)
	seedCollection(t, col)
	ctx := context.Background()

	info, err := svc.GetDeckInfo(ctx, "Spanish")
	require.NoError(t, err)
	assert.Equal(t, "Spanish", info.Name)

	_, err = svc.GetDeckInfo(ctx, "Japanese")
	require.Error(t, err)
	assert.Equal(t, "Deck 'Japanese' is not in the allowlist for read", err.Error())
	assert.True(t, permissions.IsDenied(err))
}

func TestSearchNotesIsNotFiltered(t *testing.T) {
	// Even a deny-everything policy leaves search results alone;
	// restrictions bite on modification.
	svc, col := newTestService(t, `
permissions:
  mode: allowlist
  protected_decks: []
`)
	seedCollection(t, col)
	ctx := context.Background()
	_, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "hola"}, "Spanish", nil)
	require.NoError(t, err)

	notes, err := svc.SearchNotes(ctx, "", 50)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestCreateDeck(t *testing.T) {
	svc, _ := newTestService(t, `
permissions:
  mode: denylist
`)
	ctx := context.Background()

	result, err := svc.CreateDeck(ctx, "Languages::French")
	require.NoError(t, err)
	assert.Equal(t, "Languages::French", result.Name)
	assert.True(t, result.Created)
	assert.NotZero(t, result.ID)

	// The Default deck is protected by default; CREATE counts as a
	// modification.
	_, err = svc.CreateDeck(ctx, "Default")
	require.Error(t, err)
	assert.Equal(t, "Deck 'Default' is protected from modifications", err.Error())
}

func TestCreateDeckGlobalWriteDenied(t *testing.T) {
	svc, _ := newTestService(t, `
permissions:
  global:
    write: false
  mode: denylist
`)

	_, err := svc.CreateDeck(context.Background(), "Anything")
	require.Error(t, err)
	assert.Equal(t, "Global write permission denied for all decks", err.Error())
}

func TestCreateNoteCheckOrdering(t *testing.T) {
	policy := `
permissions:
  mode: allowlist
  protected_decks: []
  deck_permissions:
    allowlist: ["Spanish"]
  tag_restrictions:
    protected_tags: ["important"]
  note_type_permissions:
    allowed_types: ["Basic"]
`
	svc, col := newTestService(t, policy)
	seedCollection(t, col)
	ctx := context.Background()
	fields := map[string]string{"Front": "hola", "Back": "hello"}

	// Deck check comes first.
	_, err := svc.CreateNote(ctx, "Basic", fields, "Japanese", []string{"important"})
	require.Error(t, err)
	assert.Equal(t, "Deck 'Japanese' is not in the allowlist for write", err.Error())

	// Then tags.
	_, err = svc.CreateNote(ctx, "Basic", fields, "Spanish", []string{"important"})
	require.Error(t, err)
	assert.Equal(t, "Notes with protected tags [important] cannot be modified", err.Error())

	// Then the note type.
	_, err = svc.CreateNote(ctx, "Cloze", fields, "Spanish", []string{"vocab"})
	require.Error(t, err)
	assert.Equal(t, "Note type 'Cloze' is not in the allowed types list", err.Error())

	// All three pass.
	note, err := svc.CreateNote(ctx, "Basic", fields, "Spanish", []string{"vocab"})
	require.NoError(t, err)
	assert.Equal(t, "hola", note.Fields["Front"])

	stored, err := col.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vocab"}, stored.Tags)
}

func TestCreateNoteUnknownTypeAfterChecks(t *testing.T) {
	svc, col := newTestService(t, "")
	seedCollection(t, col)

	_, err := svc.CreateNote(context.Background(), "Missing", nil, "Spanish", nil)
	assert.ErrorIs(t, err, store.ErrNoteTypeNotFound)
}

func TestUpdateNoteChecksCurrentAndNewTags(t *testing.T) {
	policy := `
permissions:
  mode: denylist
  tag_restrictions:
    protected_tags: ["locked"]
    readonly_tags: ["archived"]
`
	svc, col := newTestService(t, policy)
	seedCollection(t, col)
	ctx := context.Background()

	locked, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "a"}, "Spanish", []string{"locked"})
	require.NoError(t, err)
	archived, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "b"}, "Spanish", []string{"archived"})
	require.NoError(t, err)
	clean, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "c"}, "Spanish", []string{"vocab"})
	require.NoError(t, err)

	// The note's current tags block the update.
	_, err = svc.UpdateNote(ctx, locked.ID, map[string]string{"Front": "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, "Notes with protected tags [locked] cannot be modified", err.Error())

	_, err = svc.UpdateNote(ctx, archived.ID, map[string]string{"Front": "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, "Notes with readonly tags [archived] cannot be modified", err.Error())

	// Replacement tags are checked too.
	_, err = svc.UpdateNote(ctx, clean.ID, nil, []string{"locked"})
	require.Error(t, err)
	assert.Equal(t, "Notes with protected tags [locked] cannot be modified", err.Error())

	updated, err := svc.UpdateNote(ctx, clean.ID, map[string]string{"Front": "nuevo"}, []string{"vocab", "reviewed"})
	require.NoError(t, err)
	assert.Equal(t, "nuevo", updated.Fields["Front"])
	assert.Equal(t, []string{"vocab", "reviewed"}, updated.Tags)
}

func TestUpdateNoteIgnoresDeckPolicy(t *testing.T) {
	// Note updates are gated by tags only; the deck the cards live in
	// doesn't matter.
	svc, col := newTestService(t, `
permissions:
  mode: allowlist
  protected_decks: []
`)
	seedCollection(t, col)
	ctx := context.Background()
	note, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "a"}, "Spanish", nil)
	require.NoError(t, err)

	_, err = svc.UpdateNote(ctx, note.ID, map[string]string{"Front": "b"}, nil)
	assert.NoError(t, err)
}

func TestUpdateNoteNotFound(t *testing.T) {
	svc, _ := newTestService(t, "")

	_, err := svc.UpdateNote(context.Background(), 12345, nil, nil)
	assert.ErrorIs(t, err, store.ErrNoteNotFound)
}

func TestDeleteNoteChecksTagsThenDecks(t *testing.T) {
	policy := `
permissions:
  mode: denylist
  protected_decks: []
  deck_permissions:
    denylist: ["Japanese"]
  tag_restrictions:
    protected_tags: ["keep"]
`
	svc, col := newTestService(t, policy)
	seedCollection(t, col)
	ctx := context.Background()

	// Tag check fires before any deck check.
	tagged, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "a"}, "Japanese", []string{"keep"})
	require.NoError(t, err)
	_, err = svc.DeleteNote(ctx, tagged.ID)
	require.Error(t, err)
	assert.Equal(t, "Notes with protected tags [keep] cannot be modified", err.Error())

	// Every card's deck needs DELETE permission.
	denied, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "b"}, "Japanese", nil)
	require.NoError(t, err)
	_, err = svc.DeleteNote(ctx, denied.ID)
	require.Error(t, err)
	assert.Equal(t, "Deck 'Japanese' is in the denylist for delete", err.Error())

	allowed, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "c"}, "Spanish", nil)
	require.NoError(t, err)
	result, err := svc.DeleteNote(ctx, allowed.ID)
	require.NoError(t, err)
	assert.Equal(t, allowed.ID, result.NoteID)
	assert.True(t, result.Deleted)
	assert.Equal(t, 1, result.CardsDeleted)

	_, err = col.GetNote(ctx, allowed.ID)
	assert.ErrorIs(t, err, store.ErrNoteNotFound)
}

func TestDeleteDeckCheckedBeforeLookup(t *testing.T) {
	svc, col := newTestService(t, `
permissions:
  mode: denylist
  protected_decks: []
  deck_permissions:
    denylist: ["Ghost*"]
`)
	seedCollection(t, col)
	ctx := context.Background()

	// The permission check runs first, even for decks that don't exist.
	_, err := svc.DeleteDeck(ctx, "Ghost::Missing")
	require.Error(t, err)
	assert.Equal(t, "Deck 'Ghost::Missing' is in the denylist for delete", err.Error())

	_, err = svc.DeleteDeck(ctx, "Missing")
	assert.ErrorIs(t, err, store.ErrDeckNotFound)

	_, err = col.CreateNote(ctx, "Basic", map[string]string{"Front": "a"}, "Spanish", nil)
	require.NoError(t, err)
	result, err := svc.DeleteDeck(ctx, "Spanish")
	require.NoError(t, err)
	assert.Equal(t, "Spanish", result.DeckName)
	assert.True(t, result.Deleted)
	assert.Equal(t, 1, result.CardsDeleted)
}

func TestUpdateDeck(t *testing.T) {
	svc, col := newTestService(t, "")
	seedCollection(t, col)
	ctx := context.Background()

	before, err := col.GetDeckInfo(ctx, "Spanish")
	require.NoError(t, err)

	newName := "Español"
	description := "Core Spanish vocabulary"
	result, err := svc.UpdateDeck(ctx, "Spanish", &newName, &description)
	require.NoError(t, err)
	assert.Equal(t, "Español", result.DeckName)
	assert.Equal(t, before.ID, result.DeckID)
	assert.True(t, result.Updated)
	assert.Equal(t, []string{"name", "description"}, result.UpdatedFields)

	info, err := col.GetDeckInfo(ctx, "Español")
	require.NoError(t, err)
	assert.Equal(t, "Core Spanish vocabulary", info.Description)
	_, err = col.GetDeckInfo(ctx, "Spanish")
	assert.ErrorIs(t, err, store.ErrDeckNotFound)

	// Description-only update.
	description = "Updated again"
	result, err = svc.UpdateDeck(ctx, "Español", nil, &description)
	require.NoError(t, err)
	assert.Equal(t, []string{"description"}, result.UpdatedFields)

	// Nothing requested still reports success with no changed fields.
	result, err = svc.UpdateDeck(ctx, "Español", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.UpdatedFields)

	_, err = svc.UpdateDeck(ctx, "Missing", nil, nil)
	assert.ErrorIs(t, err, store.ErrDeckNotFound)
}

func TestUpdateDeckChecksNewName(t *testing.T) {
	svc, col := newTestService(t, `
permissions:
  mode: denylist
  protected_decks: ["Locked"]
`)
	seedCollection(t, col)

	locked := "Locked"
	_, err := svc.UpdateDeck(context.Background(), "Spanish", &locked, nil)
	require.Error(t, err)
	assert.Equal(t, "Deck 'Locked' is protected from modifications", err.Error())
}

func TestCreateNoteType(t *testing.T) {
	svc, col := newTestService(t, "")
	ctx := context.Background()

	result, err := svc.CreateNoteType(ctx, "Vocabulary", []string{"Term", "Definition"}, []store.CardTemplate{{}})
	require.NoError(t, err)
	assert.Equal(t, "Vocabulary", result.Name)
	assert.Equal(t, 2, result.FieldCount)
	assert.Equal(t, 1, result.TemplateCount)
	assert.True(t, result.Created)

	types, err := col.ListNoteTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, []string{"Card 1"}, types[0].Templates)

	_, err = svc.CreateNoteType(ctx, "Empty", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one field")
}

func TestCreateNoteTypeDenied(t *testing.T) {
	svc, _ := newTestService(t, `
permissions:
  mode: denylist
  note_type_permissions:
    allow_create: false
`)

	_, err := svc.CreateNoteType(context.Background(), "Custom", []string{"A"}, nil)
	require.Error(t, err)
	assert.Equal(t, "Creating new note types is not allowed", err.Error())
}

func TestTemplateDefaults(t *testing.T) {
	fields := []string{"Front", "Back", "Extra"}
	in := []store.CardTemplate{
		{},
		{Name: "Custom", QuestionFormat: "{{Back}}", AnswerFormat: "done"},
	}
	out := templateDefaults(fields, in)
	require.Len(t, out, 2)
	assert.Equal(t, "Card 1", out[0].Name)
	assert.Equal(t, "{{Front}}", out[0].QuestionFormat)
	assert.Equal(t, "{{FrontSide}}\n\n<hr id=answer>\n\n{{Extra}}", out[0].AnswerFormat)
	assert.Equal(t, in[1], out[1])
}

func TestReviewStatsPassthrough(t *testing.T) {
	svc, col := newTestService(t, "")
	seedCollection(t, col)
	ctx := context.Background()
	_, err := col.CreateNote(ctx, "Basic", map[string]string{"Front": "a"}, "Spanish", nil)
	require.NoError(t, err)

	stats, err := svc.ReviewStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "All Decks", stats.DeckName)
	assert.Equal(t, 1, stats.TotalCards)
}

func TestPermissionSummary(t *testing.T) {
	svc, _ := newTestService(t, `
permissions:
  mode: allowlist
  protected_decks: ["Default"]
`)

	summary := svc.PermissionSummary()
	assert.Equal(t, permissions.ModeAllowlist, summary.Mode)
	assert.Equal(t, []string{"Default"}, summary.ProtectedDecks)
}
