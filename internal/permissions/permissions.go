// ABOUTME: Policy parsing and permission checks for decks, tags and note types
// ABOUTME: Supports allowlist/denylist modes, protected resources and glob patterns

package permissions

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ankimcp/ankimcp/internal/store"
)

// Action is an operation class checked against the policy.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionCreate Action = "create"
)

// Mode selects how deck patterns are evaluated.
type Mode string

const (
	// ModeAllowlist permits only decks matching an allowlist pattern.
	ModeAllowlist Mode = "allowlist"
	// ModeDenylist permits every deck except those matching a denylist pattern.
	ModeDenylist Mode = "denylist"
)

// Error is a policy denial. The reason is written for end users and travels
// to clients verbatim.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func denialf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// IsDenied reports whether err is (or wraps) a permission denial.
func IsDenied(err error) bool {
	var perr *Error
	return errors.As(err, &perr)
}

// Document is the top-level shape of a permission configuration file. A nil
// Permissions section means no policy was configured.
type Document struct {
	Permissions *Section `yaml:"permissions"`
}

// Section is the permissions block of a configuration file. Absent keys fall
// back to defaults when the section itself is present; see NewManager.
type Section struct {
	Global              GlobalFlags     `yaml:"global"`
	Mode                string          `yaml:"mode"`
	DeckPermissions     DeckLists       `yaml:"deck_permissions"`
	ProtectedDecks      []string        `yaml:"protected_decks"`
	TagRestrictions     TagRestrictions `yaml:"tag_restrictions"`
	NoteTypePermissions NoteTypeRules   `yaml:"note_type_permissions"`
}

// GlobalFlags are collection-wide action switches. Nil means true.
type GlobalFlags struct {
	Read   *bool `yaml:"read"`
	Write  *bool `yaml:"write"`
	Delete *bool `yaml:"delete"`
}

// DeckLists hold glob patterns evaluated according to the mode.
type DeckLists struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// TagRestrictions name tags that limit what can happen to notes carrying them.
type TagRestrictions struct {
	ProtectedTags []string `yaml:"protected_tags"`
	ReadonlyTags  []string `yaml:"readonly_tags"`
}

// NoteTypeRules govern note type creation, modification and use.
type NoteTypeRules struct {
	AllowCreate  *bool    `yaml:"allow_create"`
	AllowModify  *bool    `yaml:"allow_modify"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// Manager evaluates permission checks against a parsed policy. It is
// immutable after construction and safe for concurrent use.
type Manager struct {
	mode         Mode
	globalRead   bool
	globalWrite  bool
	globalDelete bool

	protectedDecks []string
	allowlist      []string
	denylist       []string

	protectedTags []string
	readonlyTags  []string

	allowCreate  bool
	allowModify  bool
	allowedTypes []string

	logger *slog.Logger
}

// ParseDocument parses a YAML permission document into a Manager. Unknown
// keys are ignored for forward compatibility. A document without a
// permissions section yields a fully permissive manager.
func ParseDocument(data []byte) (*Manager, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing permission document: %w", err)
	}
	return NewManager(doc.Permissions)
}

// NewManager builds a Manager from a configuration section. A nil section
// means no policy was configured and everything is allowed. When the section
// is present, absent keys default to: mode allowlist, all global actions
// allowed, protected decks ["Default"], note type create/modify allowed.
func NewManager(section *Section) (*Manager, error) {
	if section == nil {
		return Permissive(), nil
	}

	mode := Mode(section.Mode)
	switch mode {
	case "":
		mode = ModeAllowlist
	case ModeAllowlist, ModeDenylist:
	default:
		return nil, fmt.Errorf("invalid permission mode %q", section.Mode)
	}

	// An absent protected_decks key protects the Default deck; an explicit
	// empty list protects nothing.
	protected := section.ProtectedDecks
	if protected == nil {
		protected = []string{"Default"}
	}

	return &Manager{
		mode:           mode,
		globalRead:     boolOr(section.Global.Read, true),
		globalWrite:    boolOr(section.Global.Write, true),
		globalDelete:   boolOr(section.Global.Delete, true),
		protectedDecks: protected,
		allowlist:      section.DeckPermissions.Allowlist,
		denylist:       section.DeckPermissions.Denylist,
		protectedTags:  section.TagRestrictions.ProtectedTags,
		readonlyTags:   section.TagRestrictions.ReadonlyTags,
		allowCreate:    boolOr(section.NoteTypePermissions.AllowCreate, true),
		allowModify:    boolOr(section.NoteTypePermissions.AllowModify, true),
		allowedTypes:   section.NoteTypePermissions.AllowedTypes,
		logger:         slog.Default().With("component", "permissions"),
	}, nil
}

// Permissive returns a Manager that allows everything. Used when no
// permissions section is configured.
func Permissive() *Manager {
	return &Manager{
		mode:         ModeDenylist,
		globalRead:   true,
		globalWrite:  true,
		globalDelete: true,
		allowCreate:  true,
		allowModify:  true,
		logger:       slog.Default().With("component", "permissions"),
	}
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

// CheckDeck reports whether action is allowed on the named deck. Checks run
// in a fixed order: global flags, protected decks, then the allowlist or
// denylist depending on the mode.
func (m *Manager) CheckDeck(deckName string, action Action) error {
	// CREATE counts as a write for the global flag.
	global := action
	if global == ActionCreate {
		global = ActionWrite
	}
	if !m.globalAllowed(global) {
		return denialf("Global %s permission denied for all decks", global)
	}

	// Protected decks stay readable but reject every mutation, including
	// CREATE so a protected deck can't be recreated over.
	if action != ActionRead && slices.Contains(m.protectedDecks, deckName) {
		return denialf("Deck '%s' is protected from modifications", deckName)
	}

	switch m.mode {
	case ModeAllowlist:
		// An empty allowlist allows nothing.
		if !matchesAny(deckName, m.allowlist) {
			return denialf("Deck '%s' is not in the allowlist for %s", deckName, action)
		}
	case ModeDenylist:
		if matchesAny(deckName, m.denylist) {
			return denialf("Deck '%s' is in the denylist for %s", deckName, action)
		}
	}
	return nil
}

func (m *Manager) globalAllowed(action Action) bool {
	switch action {
	case ActionWrite:
		return m.globalWrite
	case ActionDelete:
		return m.globalDelete
	default:
		return m.globalRead
	}
}

// CheckTags reports whether action is allowed for a note carrying the given
// tags. Protected tags block write and delete; readonly tags block
// everything except read. Protected is checked first.
func (m *Manager) CheckTags(tags []string, action Action) error {
	if action == ActionWrite || action == ActionDelete {
		if offending := intersect(tags, m.protectedTags); len(offending) > 0 {
			return denialf("Notes with protected tags %v cannot be modified", offending)
		}
	}
	if action != ActionRead {
		if offending := intersect(tags, m.readonlyTags); len(offending) > 0 {
			return denialf("Notes with readonly tags %v cannot be modified", offending)
		}
	}
	return nil
}

// CheckNoteType reports whether action is allowed for the named note type.
// The allowed_types restriction applies to every action, including using an
// existing type for a new note.
func (m *Manager) CheckNoteType(typeName string, action Action) error {
	switch action {
	case ActionCreate:
		if !m.allowCreate {
			return denialf("Creating new note types is not allowed")
		}
	case ActionWrite:
		if !m.allowModify {
			return denialf("Modifying note types is not allowed")
		}
	}
	if len(m.allowedTypes) > 0 && !slices.Contains(m.allowedTypes, typeName) {
		return denialf("Note type '%s' is not in the allowed types list", typeName)
	}
	return nil
}

// FilterDecks drops decks the policy won't let the client read, preserving
// order. Filtering is best-effort: denials are logged, never surfaced.
func (m *Manager) FilterDecks(decks []*store.Deck) []*store.Deck {
	filtered := make([]*store.Deck, 0, len(decks))
	for _, d := range decks {
		if err := m.CheckDeck(d.Name, ActionRead); err != nil {
			m.logger.Debug("filtering out deck", "deck", d.Name, "reason", err)
			continue
		}
		filtered = append(filtered, d)
	}
	return filtered
}

// FilterNotes drops notes whose tags the policy won't let the client read,
// preserving order.
func (m *Manager) FilterNotes(notes []*store.Note) []*store.Note {
	filtered := make([]*store.Note, 0, len(notes))
	for _, n := range notes {
		if err := m.CheckTags(n.Tags, ActionRead); err != nil {
			m.logger.Debug("filtering out note", "note_id", n.ID, "reason", err)
			continue
		}
		filtered = append(filtered, n)
	}
	return filtered
}

// intersect returns the members of tags that appear in restricted, in tag
// order.
func intersect(tags, restricted []string) []string {
	var out []string
	for _, t := range tags {
		if slices.Contains(restricted, t) {
			out = append(out, t)
		}
	}
	return out
}

// Summary is a read-only projection of the loaded policy for introspection.
type Summary struct {
	Mode                Mode            `json:"mode"`
	GlobalPermissions   map[string]bool `json:"global_permissions"`
	ProtectedDecks      []string        `json:"protected_decks"`
	DeckAllowlist       []string        `json:"deck_allowlist"`
	DeckDenylist        []string        `json:"deck_denylist"`
	ProtectedTags       []string        `json:"protected_tags"`
	ReadonlyTags        []string        `json:"readonly_tags"`
	NoteTypePermissions NoteTypeSummary `json:"note_type_permissions"`
}

// NoteTypeSummary is the note type portion of a Summary.
type NoteTypeSummary struct {
	AllowCreate  bool     `json:"allow_create"`
	AllowModify  bool     `json:"allow_modify"`
	AllowedTypes []string `json:"allowed_types"`
}

// Summary returns the effective policy. Slices are copies; mutating them
// does not affect the Manager.
func (m *Manager) Summary() Summary {
	return Summary{
		Mode: m.mode,
		GlobalPermissions: map[string]bool{
			"read":   m.globalRead,
			"write":  m.globalWrite,
			"delete": m.globalDelete,
		},
		ProtectedDecks: copyList(m.protectedDecks),
		DeckAllowlist:  copyList(m.allowlist),
		DeckDenylist:   copyList(m.denylist),
		ProtectedTags:  copyList(m.protectedTags),
		ReadonlyTags:   copyList(m.readonlyTags),
		NoteTypePermissions: NoteTypeSummary{
			AllowCreate:  m.allowCreate,
			AllowModify:  m.allowModify,
			AllowedTypes: copyList(m.allowedTypes),
		},
	}
}

// copyList copies a string slice, mapping nil to an empty slice so the
// summary serializes as [] rather than null.
func copyList(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
