// ABOUTME: Collection interface and data types for Anki collection access
// ABOUTME: Defines Deck, Note, Card, NoteType structs and the Collection interface

package store

import (
	"context"
	"errors"
)

// ErrDeckNotFound is returned when a requested deck does not exist
var ErrDeckNotFound = errors.New("deck not found")

// ErrNoteNotFound is returned when a requested note does not exist
var ErrNoteNotFound = errors.New("note not found")

// ErrNoteTypeNotFound is returned when a requested note type does not exist
var ErrNoteTypeNotFound = errors.New("note type not found")

// ErrDuplicateNoteType is returned when creating a note type whose name is taken
var ErrDuplicateNoteType = errors.New("note type already exists")

// Card type constants, matching the host application's scheduler states
const (
	CardTypeNew      = 0
	CardTypeLearning = 1
	CardTypeReview   = 2
)

// MatureInterval is the review interval (in days) at which a card counts as mature
const MatureInterval = 21

// Deck is a named collection of cards. Names are hierarchical with "::"
// separators (e.g. "Languages::Spanish").
type Deck struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CardCount int    `json:"card_count"`
	Filtered  bool   `json:"is_filtered"`
}

// DeckInfo is a deck plus its per-state card counts and description.
type DeckInfo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	CardCount     int    `json:"card_count"`
	NewCount      int    `json:"new_count"`
	LearningCount int    `json:"learning_count"`
	ReviewCount   int    `json:"review_count"`
	Filtered      bool   `json:"is_filtered"`
}

// Note is user content with named fields, typed by a note type (model).
// Fields are keyed by the note type's field names.
type Note struct {
	ID        int64             `json:"id"`
	ModelName string            `json:"model_name"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
	CardCount int               `json:"card_count"`
}

// Card is one review item generated from a note by a note type template.
type Card struct {
	ID         int64  `json:"id"`
	NoteID     int64  `json:"note_id"`
	DeckName   string `json:"deck_name"`
	Type       int    `json:"type"` // 0=new, 1=learning, 2=review
	Queue      int    `json:"queue"`
	Due        int    `json:"due"`
	Interval   int    `json:"interval"`
	EaseFactor int    `json:"ease_factor"`
	Reviews    int    `json:"reviews"`
	Lapses     int    `json:"lapses"`
	LastReview int64  `json:"last_review"`
}

// CardTemplate describes one card-generating template of a note type.
type CardTemplate struct {
	Name           string `json:"name"`
	QuestionFormat string `json:"qfmt"`
	AnswerFormat   string `json:"afmt"`
}

// NoteType (model) is the schema for a family of notes: ordered field names
// plus the templates that generate cards from them.
type NoteType struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Fields        []string `json:"fields"`
	Templates     []string `json:"templates"`
	FieldCount    int      `json:"field_count"`
	TemplateCount int      `json:"template_count"`
}

// ReviewStats summarizes card scheduling state for a deck or the whole
// collection. Mature cards have an interval of at least MatureInterval days.
type ReviewStats struct {
	DeckName      string `json:"deck_name"`
	TotalCards    int    `json:"total_cards"`
	NewCards      int    `json:"new_cards"`
	LearningCards int    `json:"learning_cards"`
	ReviewCards   int    `json:"review_cards"`
	MatureCards   int    `json:"mature_cards"`
}

// Collection defines the interface for reading and mutating a flashcard
// collection. Implementations are expected to be safe for concurrent use.
type Collection interface {
	// Decks
	ListDecks(ctx context.Context) ([]*Deck, error)
	GetDeckInfo(ctx context.Context, name string) (*DeckInfo, error)
	// CreateDeck creates the deck (and any missing parents) and returns it.
	// Creating an existing deck is not an error.
	CreateDeck(ctx context.Context, name string) (*Deck, error)
	// RenameDeck renames a deck and all of its subdecks.
	RenameDeck(ctx context.Context, name, newName string) error
	SetDeckDescription(ctx context.Context, name, description string) error
	// DeleteDeck removes a deck and its subdecks, returning how many cards
	// the named deck itself contained.
	DeleteDeck(ctx context.Context, name string) (cardsDeleted int, err error)

	// Notes
	SearchNotes(ctx context.Context, query string, limit int) ([]*Note, error)
	GetNote(ctx context.Context, id int64) (*Note, error)
	CardsForNote(ctx context.Context, noteID int64) ([]*Card, error)
	// CreateNote adds a note of the named type to the named deck, generating
	// one card per template.
	CreateNote(ctx context.Context, modelName string, fields map[string]string, deckName string, tags []string) (*Note, error)
	// UpdateNote replaces the given fields; a nil tags slice leaves tags
	// unchanged, a non-nil one replaces them.
	UpdateNote(ctx context.Context, id int64, fields map[string]string, tags []string) (*Note, error)
	// DeleteNote removes a note and all of its cards.
	DeleteNote(ctx context.Context, id int64) (cardsDeleted int, err error)

	// Note types
	ListNoteTypes(ctx context.Context) ([]*NoteType, error)
	CreateNoteType(ctx context.Context, name string, fields []string, templates []CardTemplate) (*NoteType, error)

	// Stats
	// ReviewStats reports counts for the named deck, or for the whole
	// collection when name is empty.
	ReviewStats(ctx context.Context, deckName string) (*ReviewStats, error)

	// Close releases any resources held by the collection
	Close() error
}
