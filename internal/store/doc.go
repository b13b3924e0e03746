// Package store provides access to a flashcard collection database.
//
// # Architecture
//
// The package is built around a single Collection interface covering deck,
// note, card and note type operations. Two implementations exist:
//
//   - SQLiteCollection: durable storage in a standalone SQLite database
//   - MockCollection: in-memory storage for tests and demo serving
//
// Permission enforcement is deliberately absent here; the store executes
// every operation it is asked to. Callers are expected to gate access before
// reaching the collection.
//
// # Data Models
//
//   - Deck: named group of cards, hierarchical via "::" (Languages::Spanish)
//   - Note: user content with named fields, typed by a NoteType
//   - Card: one review item generated from a note by a template
//   - NoteType: field names plus card-generating templates (a "model")
//   - ReviewStats: per-deck or collection-wide scheduling counts
//
// # SQLite Configuration
//
// The SQLite backend uses WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The schema is created automatically on open.
//
// # Search
//
// SearchNotes understands a small slice of the host application's search
// syntax: deck:NAME (subdecks included), tag:NAME, and free text matched
// case-insensitively against field values. Clauses are ANDed. Double quotes
// group words, so deck:"Spanish Verbs" scopes to one deck.
//
// # Error Handling
//
// Common errors:
//
//   - ErrDeckNotFound, ErrNoteNotFound, ErrNoteTypeNotFound
//   - ErrDuplicateNoteType: note type name already taken
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockCollection() for unit tests. Use NewSQLiteCollection with a
// temporary file for integration tests with real SQLite.
package store
