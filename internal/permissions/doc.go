// Package permissions evaluates access policies for collection operations.
//
// # Policy Document
//
// A policy is a YAML section, usually embedded in the server configuration:
//
//	permissions:
//	  global:
//	    read: true
//	    write: true
//	    delete: false
//	  mode: allowlist
//	  deck_permissions:
//	    allowlist:
//	      - "Spanish*"
//	      - "Languages::*"
//	  protected_decks:
//	    - "Default"
//	  tag_restrictions:
//	    protected_tags: ["important"]
//	    readonly_tags: ["archived"]
//	  note_type_permissions:
//	    allow_create: true
//	    allow_modify: false
//	    allowed_types: []
//
// Unknown keys are ignored. When the whole permissions section is absent the
// server runs fully permissive; when it is present, absent keys default to
// mode allowlist with the Default deck protected.
//
// # Evaluation Model
//
// The Manager exposes one check per resource axis: CheckDeck, CheckTags and
// CheckNoteType. A single operation may require several axes (creating a
// note checks its deck, its tags and its note type); callers compose the
// checks explicitly so denial messages stay deterministic.
//
// CheckDeck runs in a fixed order: global flags first, protected decks
// second, then the mode's pattern list. A CREATE counts as a write for the
// global flag and the protected check, but needs its own allowlist match.
//
// Protected tags block write and delete. Readonly tags block everything
// except read. Protected is reported first when both apply.
//
// # Modes
//
//   - allowlist: a deck must match a pattern to be touched at all. An empty
//     allowlist therefore denies every deck.
//   - denylist: every deck is available unless a pattern matches it.
//
// Patterns are shell-style globs: * matches any run of characters including
// the :: separator, ? matches one character, [abc] and [!abc] match classes.
// Matching is case-sensitive and anchored, so "Spanish" does not match
// "Spanish::Verbs" but "Spanish*" does.
//
// # Concurrency
//
// A Manager is immutable after construction. Checks are pure functions of
// the loaded policy and may run concurrently without locking.
package permissions
