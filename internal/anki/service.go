// ABOUTME: Service layer composing permission checks with collection operations
// ABOUTME: Every mutating or reading operation is gated before touching the store

// Package anki exposes the collection operations the MCP tools call. A
// Service wraps a store.Collection with a permissions.Manager: each
// operation runs its permission checks in a fixed order (deck, then tags,
// then note type) before the store is touched, so denial messages are
// deterministic.
package anki

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ankimcp/ankimcp/internal/permissions"
	"github.com/ankimcp/ankimcp/internal/store"
)

// Service gates collection access behind the permission policy.
type Service struct {
	col    store.Collection
	perms  *permissions.Manager
	logger *slog.Logger
}

// NewService creates a Service over a collection and a policy.
func NewService(col store.Collection, perms *permissions.Manager) *Service {
	return &Service{
		col:    col,
		perms:  perms,
		logger: slog.Default().With("component", "anki"),
	}
}

// CreateDeckResult reports a deck creation.
type CreateDeckResult struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Created bool   `json:"created"`
}

// CreateNoteTypeResult reports a note type creation.
type CreateNoteTypeResult struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FieldCount    int    `json:"field_count"`
	TemplateCount int    `json:"template_count"`
	Created       bool   `json:"created"`
}

// DeleteNoteResult reports a note deletion.
type DeleteNoteResult struct {
	NoteID       int64 `json:"note_id"`
	Deleted      bool  `json:"deleted"`
	CardsDeleted int   `json:"cards_deleted"`
}

// DeleteDeckResult reports a deck deletion. CardsDeleted counts only the
// named deck's own cards, not subdeck cards.
type DeleteDeckResult struct {
	DeckName     string `json:"deck_name"`
	Deleted      bool   `json:"deleted"`
	CardsDeleted int    `json:"cards_deleted"`
}

// UpdateDeckResult reports a deck update. UpdatedFields lists what changed,
// in the order name, description.
type UpdateDeckResult struct {
	DeckName      string   `json:"deck_name"`
	DeckID        int64    `json:"deck_id"`
	Updated       bool     `json:"updated"`
	UpdatedFields []string `json:"updated_fields"`
}

// ListDecks returns all decks the policy lets the client read.
func (s *Service) ListDecks(ctx context.Context) ([]*store.Deck, error) {
	decks, err := s.col.ListDecks(ctx)
	if err != nil {
		return nil, err
	}
	return s.perms.FilterDecks(decks), nil
}

// GetDeckInfo returns detailed information about one deck.
func (s *Service) GetDeckInfo(ctx context.Context, deckName string) (*store.DeckInfo, error) {
	if err := s.perms.CheckDeck(deckName, permissions.ActionRead); err != nil {
		return nil, err
	}
	return s.col.GetDeckInfo(ctx, deckName)
}

// SearchNotes runs a collection search. Results are not permission-filtered;
// restrictions bite on modification.
func (s *Service) SearchNotes(ctx context.Context, query string, limit int) ([]*store.Note, error) {
	return s.col.SearchNotes(ctx, query, limit)
}

// GetNote retrieves one note.
func (s *Service) GetNote(ctx context.Context, noteID int64) (*store.Note, error) {
	return s.col.GetNote(ctx, noteID)
}

// CardsForNote returns all cards generated from a note.
func (s *Service) CardsForNote(ctx context.Context, noteID int64) ([]*store.Card, error) {
	return s.col.CardsForNote(ctx, noteID)
}

// ReviewStats reports scheduling counts for one deck, or for the whole
// collection when deckName is empty.
func (s *Service) ReviewStats(ctx context.Context, deckName string) (*store.ReviewStats, error) {
	return s.col.ReviewStats(ctx, deckName)
}

// ListNoteTypes returns all note types.
func (s *Service) ListNoteTypes(ctx context.Context) ([]*store.NoteType, error) {
	return s.col.ListNoteTypes(ctx)
}

// CreateDeck creates a new deck after a CREATE check on its name.
func (s *Service) CreateDeck(ctx context.Context, deckName string) (*CreateDeckResult, error) {
	if err := s.perms.CheckDeck(deckName, permissions.ActionCreate); err != nil {
		return nil, err
	}
	deck, err := s.col.CreateDeck(ctx, deckName)
	if err != nil {
		return nil, err
	}
	s.logger.Info("deck created", "deck", deck.Name, "id", deck.ID)
	return &CreateDeckResult{ID: deck.ID, Name: deck.Name, Created: true}, nil
}

// CreateNoteType creates a new note type. Templates may leave the name or
// formats empty; defaults are filled in from the field list.
func (s *Service) CreateNoteType(ctx context.Context, name string, fields []string, templates []store.CardTemplate) (*CreateNoteTypeResult, error) {
	if err := s.perms.CheckNoteType(name, permissions.ActionCreate); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("note type %q needs at least one field", name)
	}

	nt, err := s.col.CreateNoteType(ctx, name, fields, templateDefaults(fields, templates))
	if err != nil {
		return nil, err
	}
	s.logger.Info("note type created", "name", nt.Name, "id", nt.ID)
	return &CreateNoteTypeResult{
		ID:            nt.ID,
		Name:          nt.Name,
		FieldCount:    nt.FieldCount,
		TemplateCount: nt.TemplateCount,
		Created:       true,
	}, nil
}

// templateDefaults fills empty template fields the way the host application
// does: question shows the first field, answer appends the last.
func templateDefaults(fields []string, templates []store.CardTemplate) []store.CardTemplate {
	out := make([]store.CardTemplate, len(templates))
	for i, t := range templates {
		if t.Name == "" {
			t.Name = "Card 1"
		}
		if t.QuestionFormat == "" {
			t.QuestionFormat = "{{" + fields[0] + "}}"
		}
		if t.AnswerFormat == "" {
			t.AnswerFormat = "{{FrontSide}}\n\n<hr id=answer>\n\n{{" + fields[len(fields)-1] + "}}"
		}
		out[i] = t
	}
	return out
}

// CreateNote adds a note after deck WRITE, tag WRITE (when tags are given)
// and note type READ checks, in that order.
func (s *Service) CreateNote(ctx context.Context, modelName string, fields map[string]string, deckName string, tags []string) (*store.Note, error) {
	if err := s.perms.CheckDeck(deckName, permissions.ActionWrite); err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := s.perms.CheckTags(tags, permissions.ActionWrite); err != nil {
			return nil, err
		}
	}
	// READ on the note type: using an existing type, not changing it.
	if err := s.perms.CheckNoteType(modelName, permissions.ActionRead); err != nil {
		return nil, err
	}

	note, err := s.col.CreateNote(ctx, modelName, fields, deckName, tags)
	if err != nil {
		return nil, err
	}
	s.logger.Info("note created", "note_id", note.ID, "deck", deckName, "model", modelName)
	return note, nil
}

// UpdateNote updates a note's fields and/or tags. Both the note's current
// tags and the replacement tags must pass a WRITE check.
func (s *Service) UpdateNote(ctx context.Context, noteID int64, fields map[string]string, tags []string) (*store.Note, error) {
	current, err := s.col.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CheckTags(current.Tags, permissions.ActionWrite); err != nil {
		return nil, err
	}
	if tags != nil {
		if err := s.perms.CheckTags(tags, permissions.ActionWrite); err != nil {
			return nil, err
		}
	}
	return s.col.UpdateNote(ctx, noteID, fields, tags)
}

// DeleteNote removes a note and its cards. The note's tags must pass a
// DELETE check, and so must the deck of every card it generated.
func (s *Service) DeleteNote(ctx context.Context, noteID int64) (*DeleteNoteResult, error) {
	note, err := s.col.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CheckTags(note.Tags, permissions.ActionDelete); err != nil {
		return nil, err
	}
	cards, err := s.col.CardsForNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	for _, card := range cards {
		if err := s.perms.CheckDeck(card.DeckName, permissions.ActionDelete); err != nil {
			return nil, err
		}
	}

	deleted, err := s.col.DeleteNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("note deleted", "note_id", noteID, "cards_deleted", deleted)
	return &DeleteNoteResult{NoteID: noteID, Deleted: true, CardsDeleted: deleted}, nil
}

// DeleteDeck removes a deck and its subdecks after a DELETE check.
func (s *Service) DeleteDeck(ctx context.Context, deckName string) (*DeleteDeckResult, error) {
	if err := s.perms.CheckDeck(deckName, permissions.ActionDelete); err != nil {
		return nil, err
	}
	deleted, err := s.col.DeleteDeck(ctx, deckName)
	if err != nil {
		return nil, err
	}
	s.logger.Info("deck deleted", "deck", deckName, "cards_deleted", deleted)
	return &DeleteDeckResult{DeckName: deckName, Deleted: true, CardsDeleted: deleted}, nil
}

// UpdateDeck renames a deck and/or sets its description. Nil means leave
// unchanged. A rename also needs WRITE permission on the new name.
func (s *Service) UpdateDeck(ctx context.Context, deckName string, newName, description *string) (*UpdateDeckResult, error) {
	if err := s.perms.CheckDeck(deckName, permissions.ActionWrite); err != nil {
		return nil, err
	}
	if newName != nil {
		if err := s.perms.CheckDeck(*newName, permissions.ActionWrite); err != nil {
			return nil, err
		}
	}

	info, err := s.col.GetDeckInfo(ctx, deckName)
	if err != nil {
		return nil, err
	}

	updatedFields := []string{}
	resultName := deckName
	if newName != nil {
		if err := s.col.RenameDeck(ctx, deckName, *newName); err != nil {
			return nil, err
		}
		resultName = *newName
		updatedFields = append(updatedFields, "name")
	}
	if description != nil {
		if err := s.col.SetDeckDescription(ctx, resultName, *description); err != nil {
			return nil, err
		}
		updatedFields = append(updatedFields, "description")
	}

	if len(updatedFields) > 0 {
		s.logger.Info("deck updated", "deck", resultName, "fields", updatedFields)
	}
	return &UpdateDeckResult{
		DeckName:      resultName,
		DeckID:        info.ID,
		Updated:       true,
		UpdatedFields: updatedFields,
	}, nil
}

// PermissionSummary returns the loaded policy for introspection.
func (s *Service) PermissionSummary() permissions.Summary {
	return s.perms.Summary()
}
