// ABOUTME: Tool catalog exposing flashcard operations to MCP clients.
// ABOUTME: Pairs each tool descriptor with a handler bound to the service layer.

// Package tools declares the MCP tool surface: fifteen named operations
// covering deck, note, and note type management plus permission inspection.
// The catalog owns the JSON Schema advertised for each tool and decodes
// incoming arguments before delegating to anki.Service.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ankimcp/ankimcp/internal/anki"
	"github.com/ankimcp/ankimcp/internal/store"
)

// ErrUnknownTool is returned by Call for names not in the catalog. Its text
// appears verbatim in tool error content, so it keeps the wire capitalization.
var ErrUnknownTool = errors.New("Unknown tool")

// Definition describes one tool in the shape tools/list advertises.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type tool struct {
	def     Definition
	handler handlerFunc
}

// Catalog binds tool definitions to service operations.
type Catalog struct {
	svc   *anki.Service
	tools []tool
	index map[string]handlerFunc
}

// NewCatalog builds the catalog over the given service.
func NewCatalog(svc *anki.Service) *Catalog {
	c := &Catalog{svc: svc}
	c.tools = []tool{
		{
			def: Definition{
				Name:        "get_permissions",
				Description: "Get current permission settings and status",
				InputSchema: json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
			},
			handler: c.getPermissions,
		},
		{
			def: Definition{
				Name:        "list_decks",
				Description: "List all available Anki decks",
				InputSchema: json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
			},
			handler: c.listDecks,
		},
		{
			def: Definition{
				Name:        "get_deck_info",
				Description: "Get detailed information about a specific deck",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"deck_name":{"type":"string","description":"Name of the deck to get info for"}},"required":["deck_name"]}`),
			},
			handler: c.getDeckInfo,
		},
		{
			def: Definition{
				Name:        "search_notes",
				Description: "Search for notes using Anki's search syntax",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Anki search query"},"limit":{"type":"integer","description":"Maximum number of results","default":50}},"required":["query"]}`),
			},
			handler: c.searchNotes,
		},
		{
			def: Definition{
				Name:        "get_note",
				Description: "Get detailed information about a specific note",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"note_id":{"type":"integer","description":"ID of the note to retrieve"}},"required":["note_id"]}`),
			},
			handler: c.getNote,
		},
		{
			def: Definition{
				Name:        "get_cards_for_note",
				Description: "Get all cards associated with a specific note",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"note_id":{"type":"integer","description":"ID of the note"}},"required":["note_id"]}`),
			},
			handler: c.getCardsForNote,
		},
		{
			def: Definition{
				Name:        "get_review_stats",
				Description: "Get review statistics for a deck or overall",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"deck_name":{"type":"string","description":"Name of the deck (optional)"}},"required":[]}`),
			},
			handler: c.getReviewStats,
		},
		{
			def: Definition{
				Name:        "list_note_types",
				Description: "List all available note types (models) with their fields and templates",
				InputSchema: json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
			},
			handler: c.listNoteTypes,
		},
		{
			def: Definition{
				Name:        "create_deck",
				Description: "Create a new deck",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"deck_name":{"type":"string","description":"Name of the deck to create"}},"required":["deck_name"]}`),
			},
			handler: c.createDeck,
		},
		{
			def: Definition{
				Name:        "create_note_type",
				Description: "Create a new note type (model)",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","description":"Name of the note type"},"fields":{"type":"array","items":{"type":"string"},"description":"List of field names"},"templates":{"type":"array","items":{"type":"object","properties":{"name":{"type":"string"},"qfmt":{"type":"string"},"afmt":{"type":"string"}},"required":["name","qfmt","afmt"]},"description":"List of card templates"}},"required":["name","fields","templates"]}`),
			},
			handler: c.createNoteType,
		},
		{
			def: Definition{
				Name:        "create_note",
				Description: "Create a new note",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"model_name":{"type":"string","description":"Name of the note type (model)"},"fields":{"type":"object","description":"Field name to value mapping"},"deck_name":{"type":"string","description":"Name of the deck to add the note to"},"tags":{"type":"array","items":{"type":"string"},"description":"Optional list of tags"}},"required":["model_name","fields","deck_name"]}`),
			},
			handler: c.createNote,
		},
		{
			def: Definition{
				Name:        "update_note",
				Description: "Update an existing note",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"note_id":{"type":"integer","description":"ID of the note to update"},"fields":{"type":"object","description":"Field name to value mapping (only fields to update)"},"tags":{"type":"array","items":{"type":"string"},"description":"New list of tags (replaces existing tags)"}},"required":["note_id"]}`),
			},
			handler: c.updateNote,
		},
		{
			def: Definition{
				Name:        "delete_note",
				Description: "Delete a note and all its cards",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"note_id":{"type":"integer","description":"ID of the note to delete"}},"required":["note_id"]}`),
			},
			handler: c.deleteNote,
		},
		{
			def: Definition{
				Name:        "delete_deck",
				Description: "Delete a deck and all its cards. Cannot delete protected decks.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"deck_name":{"type":"string","description":"Name of the deck to delete"}},"required":["deck_name"]}`),
			},
			handler: c.deleteDeck,
		},
		{
			def: Definition{
				Name:        "update_deck",
				Description: "Update a deck's properties (name, description). Cannot update protected decks.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"deck_name":{"type":"string","description":"Current name of the deck to update"},"new_name":{"type":"string","description":"New name for the deck (optional)"},"description":{"type":"string","description":"New description for the deck (optional)"}},"required":["deck_name"]}`),
			},
			handler: c.updateDeck,
		},
	}

	c.index = make(map[string]handlerFunc, len(c.tools))
	for _, t := range c.tools {
		c.index[t.def.Name] = t.handler
	}
	return c
}

// List returns the tool definitions in declaration order.
func (c *Catalog) List() []Definition {
	defs := make([]Definition, len(c.tools))
	for i, t := range c.tools {
		defs[i] = t.def
	}
	return defs
}

// Call invokes the named tool with the given JSON arguments. A missing or
// null arguments object is treated as empty.
func (c *Catalog) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	handler, ok := c.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	return handler(ctx, args)
}

func errMissingArg(name string) error {
	return fmt.Errorf("missing required argument: %s", name)
}

func (c *Catalog) getPermissions(_ context.Context, _ json.RawMessage) (any, error) {
	return c.svc.PermissionSummary(), nil
}

func (c *Catalog) listDecks(ctx context.Context, _ json.RawMessage) (any, error) {
	return c.svc.ListDecks(ctx)
}

type deckNameInput struct {
	DeckName string `json:"deck_name"`
}

func (c *Catalog) getDeckInfo(ctx context.Context, args json.RawMessage) (any, error) {
	var in deckNameInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.DeckName == "" {
		return nil, errMissingArg("deck_name")
	}
	return c.svc.GetDeckInfo(ctx, in.DeckName)
}

type searchNotesInput struct {
	Query *string `json:"query"`
	Limit int     `json:"limit"`
}

func (c *Catalog) searchNotes(ctx context.Context, args json.RawMessage) (any, error) {
	var in searchNotesInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	// The empty query is legal and matches every note, so absence is
	// detected through the pointer rather than the zero value.
	if in.Query == nil {
		return nil, errMissingArg("query")
	}
	return c.svc.SearchNotes(ctx, *in.Query, in.Limit)
}

type noteIDInput struct {
	NoteID *int64 `json:"note_id"`
}

func (c *Catalog) getNote(ctx context.Context, args json.RawMessage) (any, error) {
	var in noteIDInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.NoteID == nil {
		return nil, errMissingArg("note_id")
	}
	return c.svc.GetNote(ctx, *in.NoteID)
}

func (c *Catalog) getCardsForNote(ctx context.Context, args json.RawMessage) (any, error) {
	var in noteIDInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.NoteID == nil {
		return nil, errMissingArg("note_id")
	}
	return c.svc.CardsForNote(ctx, *in.NoteID)
}

func (c *Catalog) getReviewStats(ctx context.Context, args json.RawMessage) (any, error) {
	var in deckNameInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return c.svc.ReviewStats(ctx, in.DeckName)
}

func (c *Catalog) listNoteTypes(ctx context.Context, _ json.RawMessage) (any, error) {
	return c.svc.ListNoteTypes(ctx)
}

func (c *Catalog) createDeck(ctx context.Context, args json.RawMessage) (any, error) {
	var in deckNameInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.DeckName == "" {
		return nil, errMissingArg("deck_name")
	}
	return c.svc.CreateDeck(ctx, in.DeckName)
}

type createNoteTypeInput struct {
	Name      string               `json:"name"`
	Fields    []string             `json:"fields"`
	Templates []store.CardTemplate `json:"templates"`
}

func (c *Catalog) createNoteType(ctx context.Context, args json.RawMessage) (any, error) {
	var in createNoteTypeInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.Name == "" {
		return nil, errMissingArg("name")
	}
	if in.Fields == nil {
		return nil, errMissingArg("fields")
	}
	if in.Templates == nil {
		return nil, errMissingArg("templates")
	}
	return c.svc.CreateNoteType(ctx, in.Name, in.Fields, in.Templates)
}

type createNoteInput struct {
	ModelName string            `json:"model_name"`
	Fields    map[string]string `json:"fields"`
	DeckName  string            `json:"deck_name"`
	Tags      []string          `json:"tags"`
}

func (c *Catalog) createNote(ctx context.Context, args json.RawMessage) (any, error) {
	var in createNoteInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.ModelName == "" {
		return nil, errMissingArg("model_name")
	}
	if in.Fields == nil {
		return nil, errMissingArg("fields")
	}
	if in.DeckName == "" {
		return nil, errMissingArg("deck_name")
	}
	return c.svc.CreateNote(ctx, in.ModelName, in.Fields, in.DeckName, in.Tags)
}

type updateNoteInput struct {
	NoteID *int64            `json:"note_id"`
	Fields map[string]string `json:"fields"`
	Tags   []string          `json:"tags"`
}

func (c *Catalog) updateNote(ctx context.Context, args json.RawMessage) (any, error) {
	var in updateNoteInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.NoteID == nil {
		return nil, errMissingArg("note_id")
	}
	// A nil tags slice means the client omitted the key and existing tags
	// stay; an explicit empty array clears them.
	return c.svc.UpdateNote(ctx, *in.NoteID, in.Fields, in.Tags)
}

func (c *Catalog) deleteNote(ctx context.Context, args json.RawMessage) (any, error) {
	var in noteIDInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.NoteID == nil {
		return nil, errMissingArg("note_id")
	}
	return c.svc.DeleteNote(ctx, *in.NoteID)
}

func (c *Catalog) deleteDeck(ctx context.Context, args json.RawMessage) (any, error) {
	var in deckNameInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.DeckName == "" {
		return nil, errMissingArg("deck_name")
	}
	return c.svc.DeleteDeck(ctx, in.DeckName)
}

type updateDeckInput struct {
	DeckName    string  `json:"deck_name"`
	NewName     *string `json:"new_name"`
	Description *string `json:"description"`
}

func (c *Catalog) updateDeck(ctx context.Context, args json.RawMessage) (any, error) {
	var in updateDeckInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.DeckName == "" {
		return nil, errMissingArg("deck_name")
	}
	return c.svc.UpdateDeck(ctx, in.DeckName, in.NewName, in.Description)
}
