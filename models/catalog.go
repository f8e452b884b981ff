// models/catalog.go
package models

import (
	"strings"

	"github.com/gosimple/slug"
)

// Difficulty is the level a player picks before queueing.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties lists the levels in the order the client shows them.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ParseDifficulty accepts any casing of Easy, Medium or Hard.
func ParseDifficulty(s string) (Difficulty, bool) {
	s = strings.TrimSpace(s)
	for _, d := range Difficulties {
		if strings.EqualFold(s, string(d)) {
			return d, true
		}
	}
	return "", false
}

// Topic is a practice area offered in the coliseum.
type Topic struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Topics is the catalog offered by the client's topic picker.
var Topics = []Topic{
	newTopic("Basics"),
	newTopic("Arrays"),
	newTopic("Strings"),
	newTopic("Recursion"),
	newTopic("Trees"),
	newTopic("Graphs"),
	newTopic("DP"),
}

func newTopic(name string) Topic {
	return Topic{Name: name, Slug: TopicSlug(name)}
}

// TopicSlug normalizes a topic label into its matching key.
func TopicSlug(name string) string {
	return slug.Make(strings.TrimSpace(name))
}

// ParseTopic resolves a label or slug to the canonical catalog name.
func ParseTopic(s string) (string, bool) {
	key := TopicSlug(s)
	if key == "" {
		return "", false
	}
	for _, t := range Topics {
		if t.Slug == key {
			return t.Name, true
		}
	}
	return "", false
}
