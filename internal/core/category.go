package core

import "strings"

// Category is the closed set of spending categories.
type Category string

const (
	Goods     Category = "GOODS"
	Event     Category = "EVENT"
	Streaming Category = "STREAMING"
	Game      Category = "GAME"
	Book      Category = "BOOK"
	Food      Category = "FOOD"
	Etc       Category = "ETC"
)

type categoryInfo struct {
	label string
	emoji string
}

// Declaration order is the display order.
var categoryOrder = []Category{Goods, Event, Streaming, Game, Book, Food, Etc}

var categoryTable = map[Category]categoryInfo{
	Goods:     {label: "굿즈", emoji: "🎁"},
	Event:     {label: "이벤트/콘서트", emoji: "🎫"},
	Streaming: {label: "스트리밍", emoji: "📺"},
	Game:      {label: "게임", emoji: "🎮"},
	Book:      {label: "책/만화", emoji: "📚"},
	Food:      {label: "덕질 음식", emoji: "🍜"},
	Etc:       {label: "기타", emoji: "💰"},
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// ParseCategory resolves a category name, ignoring case and surrounding space.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &ValidationError{Field: "category", Message: "unknown category " + strings.TrimSpace(s)}
	}
	return c, nil
}

func (c Category) Valid() bool {
	_, ok := categoryTable[c]
	return ok
}

// Label returns the display label, or "" for an unknown category.
func (c Category) Label() string { return categoryTable[c].label }

// Emoji returns the display emoji, or "" for an unknown category.
func (c Category) Emoji() string { return categoryTable[c].emoji }

func (c Category) String() string { return string(c) }
