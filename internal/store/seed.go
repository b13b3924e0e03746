// ABOUTME: Sample data seeding for demo serving and local development
// ABOUTME: Populates a Collection with decks, note types and notes through the interface

package store

import (
	"context"
	"fmt"
)

// SeedSampleData populates an empty collection with a small study set.
// A collection that already has note types is left untouched.
func SeedSampleData(ctx context.Context, col Collection) error {
	types, err := col.ListNoteTypes(ctx)
	if err != nil {
		return fmt.Errorf("checking note types: %w", err)
	}
	if len(types) > 0 {
		return nil
	}

	basicTemplates := []CardTemplate{{
		Name:           "Card 1",
		QuestionFormat: "{{Front}}",
		AnswerFormat:   "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}",
	}}
	reversedTemplates := append(basicTemplates, CardTemplate{
		Name:           "Card 2",
		QuestionFormat: "{{Back}}",
		AnswerFormat:   "{{FrontSide}}\n\n<hr id=answer>\n\n{{Front}}",
	})

	if _, err := col.CreateNoteType(ctx, "Basic", []string{"Front", "Back"}, basicTemplates); err != nil {
		return fmt.Errorf("creating Basic note type: %w", err)
	}
	if _, err := col.CreateNoteType(ctx, "Basic (and reversed card)", []string{"Front", "Back"}, reversedTemplates); err != nil {
		return fmt.Errorf("creating reversed note type: %w", err)
	}

	for _, name := range []string{"Default", "Spanish", "Spanish::Verbs", "Japanese::Vocabulary"} {
		if _, err := col.CreateDeck(ctx, name); err != nil {
			return fmt.Errorf("creating deck %s: %w", name, err)
		}
	}

	notes := []struct {
		model  string
		deck   string
		fields map[string]string
		tags   []string
	}{
		{"Basic", "Spanish", map[string]string{"Front": "hola", "Back": "hello"}, []string{"vocabulary", "verified"}},
		{"Basic", "Spanish", map[string]string{"Front": "adiós", "Back": "goodbye"}, []string{"vocabulary"}},
		{"Basic (and reversed card)", "Spanish::Verbs", map[string]string{"Front": "hablar", "Back": "to speak"}, []string{"verbs"}},
		{"Basic", "Japanese::Vocabulary", map[string]string{"Front": "猫", "Back": "cat"}, []string{"vocabulary"}},
		{"Basic", "Default", map[string]string{"Front": "What is spaced repetition?", "Back": "Reviewing at increasing intervals"}, nil},
	}
	for _, n := range notes {
		if _, err := col.CreateNote(ctx, n.model, n.fields, n.deck, n.tags); err != nil {
			return fmt.Errorf("creating note in %s: %w", n.deck, err)
		}
	}
	return nil
}
