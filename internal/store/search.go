// ABOUTME: Minimal search query parser shared by Collection implementations
// ABOUTME: Supports deck:/tag: scoping and free-text terms over note fields

package store

import "strings"

// searchQuery is a parsed subset of the host application's search syntax.
// All clauses are ANDed together, matching how space-separated terms combine
// in the host's search box.
type searchQuery struct {
	Decks []string // deck:NAME clauses, subdecks included
	Tags  []string // tag:NAME clauses
	Terms []string // free text, matched case-insensitively against field values
}

// parseSearchQuery splits a query into deck/tag/text clauses. Double quotes
// group words into one clause and are stripped: deck:"Spanish Verbs" scopes
// to that single deck.
func parseSearchQuery(query string) searchQuery {
	var q searchQuery
	for _, tok := range splitSearchTokens(query) {
		switch {
		case strings.HasPrefix(tok, "deck:"):
			if name := strings.TrimPrefix(tok, "deck:"); name != "" {
				q.Decks = append(q.Decks, name)
			}
		case strings.HasPrefix(tok, "tag:"):
			if tag := strings.TrimPrefix(tok, "tag:"); tag != "" {
				q.Tags = append(q.Tags, tag)
			}
		default:
			q.Terms = append(q.Terms, tok)
		}
	}
	return q
}

// splitSearchTokens splits on spaces outside double quotes and drops the
// quote characters themselves.
func splitSearchTokens(query string) []string {
	var tokens []string
	var b strings.Builder
	inQuotes := false
	for _, r := range query {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if b.Len() > 0 {
				tokens = append(tokens, b.String())
				b.Reset()
			}
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// deckInScope reports whether deckName is the scoped deck or one of its
// subdecks.
func deckInScope(deckName, scope string) bool {
	return deckName == scope || strings.HasPrefix(deckName, scope+"::")
}

// matches evaluates the query against one note's data. deckNames are the
// decks the note's cards live in.
func (q searchQuery) matches(fields map[string]string, tags []string, deckNames []string) bool {
	for _, scope := range q.Decks {
		found := false
		for _, name := range deckNames {
			if deckInScope(name, scope) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, want := range q.Tags {
		found := false
		for _, tag := range tags {
			if strings.EqualFold(tag, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, term := range q.Terms {
		lower := strings.ToLower(term)
		found := false
		for _, value := range fields {
			if strings.Contains(strings.ToLower(value), lower) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
