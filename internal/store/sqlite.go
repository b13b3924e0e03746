// ABOUTME: SQLite implementation of the Collection interface using modernc.org/sqlite
// ABOUTME: Stores decks, notes, cards and note types with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCollection implements the Collection interface using SQLite.
type SQLiteCollection struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteCollection opens (or creates) a collection database at the given
// path. The schema is automatically created if it doesn't exist. Parent
// directories are created if needed.
func NewSQLiteCollection(path string) (*SQLiteCollection, error) {
	logger := slog.Default().With("component", "collection")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	c := &SQLiteCollection{
		db:     db,
		logger: logger,
	}

	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite collection opened", "path", path)
	return c, nil
}

// createSchema creates the database tables if they don't exist
func (c *SQLiteCollection) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS decks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			filtered INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notetypes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			fields TEXT NOT NULL,
			templates TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			notetype_id INTEGER NOT NULL REFERENCES notetypes(id),
			fields TEXT NOT NULL,
			search_text TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notes_type ON notes(notetype_id);

		CREATE TABLE IF NOT EXISTS cards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			note_id INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			deck_id INTEGER NOT NULL REFERENCES decks(id),
			ord INTEGER NOT NULL DEFAULT 0,
			type INTEGER NOT NULL DEFAULT 0,
			queue INTEGER NOT NULL DEFAULT 0,
			due INTEGER NOT NULL DEFAULT 0,
			ivl INTEGER NOT NULL DEFAULT 0,
			factor INTEGER NOT NULL DEFAULT 2500,
			reps INTEGER NOT NULL DEFAULT 0,
			lapses INTEGER NOT NULL DEFAULT 0,
			last_review INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_cards_note ON cards(note_id);
		CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck_id);
	`

	_, err := c.db.Exec(schema)
	return err
}

// encodeTags stores tags space-padded (" a b ") so a single LIKE can match
// whole tags, the way the host application stores them.
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

func decodeTags(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// searchText flattens field values in declared order for free-text search.
func searchText(order []string, fields map[string]string) string {
	values := make([]string, 0, len(order))
	for _, name := range order {
		values = append(values, fields[name])
	}
	return strings.ToLower(strings.Join(values, " "))
}

// ListDecks returns all decks sorted by name.
func (c *SQLiteCollection) ListDecks(ctx context.Context) ([]*Deck, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT d.id, d.name, d.filtered,
			(SELECT COUNT(*) FROM cards WHERE deck_id = d.id)
		FROM decks d
		ORDER BY d.name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing decks: %w", err)
	}
	defer rows.Close()

	var decks []*Deck
	for rows.Next() {
		var d Deck
		var filtered int
		if err := rows.Scan(&d.ID, &d.Name, &filtered, &d.CardCount); err != nil {
			return nil, fmt.Errorf("scanning deck: %w", err)
		}
		d.Filtered = filtered != 0
		decks = append(decks, &d)
	}
	return decks, rows.Err()
}

// GetDeckInfo returns a deck with per-state card counts.
func (c *SQLiteCollection) GetDeckInfo(ctx context.Context, name string) (*DeckInfo, error) {
	var info DeckInfo
	var filtered int
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, description, filtered FROM decks WHERE name = ?
	`, name).Scan(&info.ID, &info.Name, &info.Description, &filtered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeckNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting deck: %w", err)
	}
	info.Filtered = filtered != 0

	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(type = 0), 0),
			COALESCE(SUM(type = 1), 0),
			COALESCE(SUM(type = 2), 0)
		FROM cards WHERE deck_id = ?
	`, info.ID).Scan(&info.CardCount, &info.NewCount, &info.LearningCount, &info.ReviewCount)
	if err != nil {
		return nil, fmt.Errorf("counting cards: %w", err)
	}
	return &info, nil
}

// CreateDeck creates the deck and any missing parent decks.
func (c *SQLiteCollection) CreateDeck(ctx context.Context, name string) (*Deck, error) {
	if name == "" {
		return nil, fmt.Errorf("deck name must not be empty")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	segments := strings.Split(name, "::")
	for i := range segments {
		path := strings.Join(segments[:i+1], "::")
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO decks (name, created_at) VALUES (?, ?)
		`, path, now); err != nil {
			return nil, fmt.Errorf("creating deck %q: %w", path, err)
		}
	}

	var d Deck
	var filtered int
	err = tx.QueryRowContext(ctx, `
		SELECT d.id, d.name, d.filtered,
			(SELECT COUNT(*) FROM cards WHERE deck_id = d.id)
		FROM decks d WHERE d.name = ?
	`, name).Scan(&d.ID, &d.Name, &filtered, &d.CardCount)
	if err != nil {
		return nil, fmt.Errorf("reading created deck: %w", err)
	}
	d.Filtered = filtered != 0

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	return &d, nil
}

// RenameDeck renames a deck and all of its subdecks.
func (c *SQLiteCollection) RenameDeck(ctx context.Context, name, newName string) error {
	if newName == "" {
		return fmt.Errorf("deck name must not be empty")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM decks WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDeckNotFound
	}
	if err != nil {
		return fmt.Errorf("getting deck: %w", err)
	}

	// One statement covers the deck and its subtree: the exact match
	// resolves to newName, children keep their suffix.
	if _, err := tx.ExecContext(ctx, `
		UPDATE decks SET name = ? || substr(name, length(?) + 1)
		WHERE name = ? OR name LIKE ? || '::%'
	`, newName, name, name, name); err != nil {
		return fmt.Errorf("renaming deck: %w", err)
	}
	return tx.Commit()
}

// SetDeckDescription updates a deck's description.
func (c *SQLiteCollection) SetDeckDescription(ctx context.Context, name, description string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE decks SET description = ? WHERE name = ?
	`, description, name)
	if err != nil {
		return fmt.Errorf("updating deck: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating deck: %w", err)
	}
	if n == 0 {
		return ErrDeckNotFound
	}
	return nil
}

// DeleteDeck removes a deck and its subdecks. The returned count covers only
// cards directly in the named deck, matching the host application's report.
func (c *SQLiteCollection) DeleteDeck(ctx context.Context, name string) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM decks WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDeckNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("getting deck: %w", err)
	}

	var cardsDeleted int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE deck_id = ?`, id).Scan(&cardsDeleted)
	if err != nil {
		return 0, fmt.Errorf("counting cards: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cards WHERE deck_id IN (
			SELECT id FROM decks WHERE name = ? OR name LIKE ? || '::%'
		)
	`, name, name); err != nil {
		return 0, fmt.Errorf("deleting cards: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM decks WHERE name = ? OR name LIKE ? || '::%'
	`, name, name); err != nil {
		return 0, fmt.Errorf("deleting decks: %w", err)
	}
	// Notes that lost their last card go away too.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM notes WHERE NOT EXISTS (
			SELECT 1 FROM cards WHERE cards.note_id = notes.id
		)
	`); err != nil {
		return 0, fmt.Errorf("deleting orphaned notes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return cardsDeleted, nil
}

// SearchNotes evaluates a query against all notes, returning up to limit
// matches ordered by note id.
func (c *SQLiteCollection) SearchNotes(ctx context.Context, query string, limit int) ([]*Note, error) {
	if limit <= 0 {
		limit = 50
	}

	q := parseSearchQuery(query)

	var where []string
	var args []any
	for _, scope := range q.Decks {
		where = append(where, `EXISTS (
			SELECT 1 FROM cards c JOIN decks d ON d.id = c.deck_id
			WHERE c.note_id = n.id AND (d.name = ? OR d.name LIKE ? || '::%')
		)`)
		args = append(args, scope, scope)
	}
	for _, tag := range q.Tags {
		where = append(where, `lower(n.tags) LIKE '% ' || lower(?) || ' %'`)
		args = append(args, tag)
	}
	for _, term := range q.Terms {
		where = append(where, `instr(n.search_text, lower(?)) > 0`)
		args = append(args, term)
	}

	sqlQuery := `
		SELECT n.id, t.name, n.fields, n.tags,
			(SELECT COUNT(*) FROM cards WHERE note_id = n.id)
		FROM notes n JOIN notetypes t ON t.id = n.notetype_id
	`
	if len(where) > 0 {
		sqlQuery += " WHERE " + strings.Join(where, " AND ")
	}
	sqlQuery += " ORDER BY n.id LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("searching notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// scanNote reads one note row (id, type name, fields json, tags, card count).
func scanNote(row interface{ Scan(...any) error }) (*Note, error) {
	var n Note
	var fieldsJSON, tags string
	if err := row.Scan(&n.ID, &n.ModelName, &fieldsJSON, &tags, &n.CardCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("scanning note: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &n.Fields); err != nil {
		return nil, fmt.Errorf("decoding note fields: %w", err)
	}
	n.Tags = decodeTags(tags)
	return &n, nil
}

// GetNote retrieves a note by id.
func (c *SQLiteCollection) GetNote(ctx context.Context, id int64) (*Note, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT n.id, t.name, n.fields, n.tags,
			(SELECT COUNT(*) FROM cards WHERE note_id = n.id)
		FROM notes n JOIN notetypes t ON t.id = n.notetype_id
		WHERE n.id = ?
	`, id)
	return scanNote(row)
}

// CardsForNote returns all cards of a note ordered by id.
func (c *SQLiteCollection) CardsForNote(ctx context.Context, noteID int64) ([]*Card, error) {
	var exists int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = ?`, noteID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting note: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT c.id, c.note_id, d.name, c.type, c.queue, c.due, c.ivl,
			c.factor, c.reps, c.lapses, c.last_review
		FROM cards c JOIN decks d ON d.id = c.deck_id
		WHERE c.note_id = ?
		ORDER BY c.id
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	defer rows.Close()

	var cards []*Card
	for rows.Next() {
		var card Card
		if err := rows.Scan(&card.ID, &card.NoteID, &card.DeckName, &card.Type,
			&card.Queue, &card.Due, &card.Interval, &card.EaseFactor,
			&card.Reviews, &card.Lapses, &card.LastReview); err != nil {
			return nil, fmt.Errorf("scanning card: %w", err)
		}
		cards = append(cards, &card)
	}
	return cards, rows.Err()
}

// CreateNote adds a note of the named type to the named deck, one card per
// template. Fields not declared by the note type are dropped.
func (c *SQLiteCollection) CreateNote(ctx context.Context, modelName string, fields map[string]string, deckName string, tags []string) (*Note, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var typeID int64
	var fieldsJSON, templatesJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT id, fields, templates FROM notetypes WHERE name = ?
	`, modelName).Scan(&typeID, &fieldsJSON, &templatesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoteTypeNotFound, modelName)
	}
	if err != nil {
		return nil, fmt.Errorf("getting note type: %w", err)
	}

	var deckID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM decks WHERE name = ?`, deckName).Scan(&deckID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeckNotFound, deckName)
	}
	if err != nil {
		return nil, fmt.Errorf("getting deck: %w", err)
	}

	var fieldOrder []string
	if err := json.Unmarshal([]byte(fieldsJSON), &fieldOrder); err != nil {
		return nil, fmt.Errorf("decoding note type fields: %w", err)
	}
	var templates []CardTemplate
	if err := json.Unmarshal([]byte(templatesJSON), &templates); err != nil {
		return nil, fmt.Errorf("decoding note type templates: %w", err)
	}

	noteFields := make(map[string]string, len(fieldOrder))
	for _, fieldName := range fieldOrder {
		noteFields[fieldName] = fields[fieldName]
	}
	encoded, err := json.Marshal(noteFields)
	if err != nil {
		return nil, fmt.Errorf("encoding note fields: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO notes (notetype_id, fields, search_text, tags, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, typeID, string(encoded), searchText(fieldOrder, noteFields), encodeTags(tags), time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("inserting note: %w", err)
	}
	noteID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading note id: %w", err)
	}

	for ord := range templates {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cards (note_id, deck_id, ord) VALUES (?, ?, ?)
		`, noteID, deckID, ord); err != nil {
			return nil, fmt.Errorf("inserting card: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}

	return &Note{
		ID:        noteID,
		ModelName: modelName,
		Fields:    noteFields,
		Tags:      append([]string(nil), tags...),
		CardCount: len(templates),
	}, nil
}

// UpdateNote replaces the given fields and, when tags is non-nil, the tags.
func (c *SQLiteCollection) UpdateNote(ctx context.Context, id int64, fields map[string]string, tags []string) (*Note, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var typeID int64
	var fieldsJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT notetype_id, fields FROM notes WHERE id = ?
	`, id).Scan(&typeID, &fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting note: %w", err)
	}

	var noteFields map[string]string
	if err := json.Unmarshal([]byte(fieldsJSON), &noteFields); err != nil {
		return nil, fmt.Errorf("decoding note fields: %w", err)
	}
	for fieldName, value := range fields {
		// Only fields the note's type declares stick.
		if _, ok := noteFields[fieldName]; ok {
			noteFields[fieldName] = value
		}
	}

	var orderJSON string
	err = tx.QueryRowContext(ctx, `SELECT fields FROM notetypes WHERE id = ?`, typeID).Scan(&orderJSON)
	if err != nil {
		return nil, fmt.Errorf("getting note type: %w", err)
	}
	var fieldOrder []string
	if err := json.Unmarshal([]byte(orderJSON), &fieldOrder); err != nil {
		return nil, fmt.Errorf("decoding note type fields: %w", err)
	}

	encoded, err := json.Marshal(noteFields)
	if err != nil {
		return nil, fmt.Errorf("encoding note fields: %w", err)
	}

	if tags != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE notes SET fields = ?, search_text = ?, tags = ? WHERE id = ?
		`, string(encoded), searchText(fieldOrder, noteFields), encodeTags(tags), id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE notes SET fields = ?, search_text = ? WHERE id = ?
		`, string(encoded), searchText(fieldOrder, noteFields), id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating note: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT n.id, t.name, n.fields, n.tags,
			(SELECT COUNT(*) FROM cards WHERE note_id = n.id)
		FROM notes n JOIN notetypes t ON t.id = n.notetype_id
		WHERE n.id = ?
	`, id)
	n, err := scanNote(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	return n, nil
}

// DeleteNote removes a note and all of its cards.
func (c *SQLiteCollection) DeleteNote(ctx context.Context, id int64) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var cardsDeleted int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE note_id = ?`, id).Scan(&cardsDeleted)
	if err != nil {
		return 0, fmt.Errorf("counting cards: %w", err)
	}

	// foreign_keys is a per-connection pragma, so the schema's cascade may
	// not fire on pooled connections. Delete the cards explicitly.
	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE note_id = ?`, id); err != nil {
		return 0, fmt.Errorf("deleting cards: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting note: %w", err)
	}
	if affected == 0 {
		return 0, ErrNoteNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return cardsDeleted, nil
}

// ListNoteTypes returns all note types sorted by name.
func (c *SQLiteCollection) ListNoteTypes(ctx context.Context) ([]*NoteType, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, fields, templates FROM notetypes ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing note types: %w", err)
	}
	defer rows.Close()

	var types []*NoteType
	for rows.Next() {
		var nt NoteType
		var fieldsJSON, templatesJSON string
		if err := rows.Scan(&nt.ID, &nt.Name, &fieldsJSON, &templatesJSON); err != nil {
			return nil, fmt.Errorf("scanning note type: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &nt.Fields); err != nil {
			return nil, fmt.Errorf("decoding note type fields: %w", err)
		}
		var templates []CardTemplate
		if err := json.Unmarshal([]byte(templatesJSON), &templates); err != nil {
			return nil, fmt.Errorf("decoding note type templates: %w", err)
		}
		for _, t := range templates {
			nt.Templates = append(nt.Templates, t.Name)
		}
		nt.FieldCount = len(nt.Fields)
		nt.TemplateCount = len(nt.Templates)
		types = append(types, &nt)
	}
	return types, rows.Err()
}

// CreateNoteType adds a new note type.
func (c *SQLiteCollection) CreateNoteType(ctx context.Context, name string, fields []string, templates []CardTemplate) (*NoteType, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM notetypes WHERE name = ?`, name).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNoteType, name)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking note type: %w", err)
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}
	templatesJSON, err := json.Marshal(templates)
	if err != nil {
		return nil, fmt.Errorf("encoding templates: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO notetypes (name, fields, templates, created_at)
		VALUES (?, ?, ?, ?)
	`, name, string(fieldsJSON), string(templatesJSON), time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("inserting note type: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading note type id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}

	names := make([]string, 0, len(templates))
	for _, t := range templates {
		names = append(names, t.Name)
	}
	return &NoteType{
		ID:            id,
		Name:          name,
		Fields:        append([]string(nil), fields...),
		Templates:     names,
		FieldCount:    len(fields),
		TemplateCount: len(names),
	}, nil
}

// ReviewStats reports scheduling counts for one deck or the whole collection.
func (c *SQLiteCollection) ReviewStats(ctx context.Context, deckName string) (*ReviewStats, error) {
	stats := &ReviewStats{DeckName: deckName}

	query := `
		SELECT COUNT(*),
			COALESCE(SUM(type = 0), 0),
			COALESCE(SUM(type = 1), 0),
			COALESCE(SUM(type = 2), 0),
			COALESCE(SUM(ivl >= ?), 0)
		FROM cards
	`
	args := []any{MatureInterval}

	if deckName != "" {
		var deckID int64
		err := c.db.QueryRowContext(ctx, `SELECT id FROM decks WHERE name = ?`, deckName).Scan(&deckID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeckNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("getting deck: %w", err)
		}
		query += " WHERE deck_id = ?"
		args = append(args, deckID)
	} else {
		stats.DeckName = "All Decks"
	}

	err := c.db.QueryRowContext(ctx, query, args...).Scan(&stats.TotalCards,
		&stats.NewCards, &stats.LearningCards, &stats.ReviewCards, &stats.MatureCards)
	if err != nil {
		return nil, fmt.Errorf("counting cards: %w", err)
	}
	return stats, nil
}

// Close closes the underlying database.
func (c *SQLiteCollection) Close() error {
	return c.db.Close()
}
