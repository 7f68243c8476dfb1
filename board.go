/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	NumCategories       = 6
	NumCluesPerCategory = 5

	defaultCategoryPool = 100
	placeholder         = "?"
)

var (
	ErrInsufficientData       = errors.New("not enough trivia data")
	ErrInsufficientCategories = fmt.Errorf("%w: too few categories", ErrInsufficientData)
	ErrInsufficientClues      = fmt.Errorf("%w: too few clues", ErrInsufficientData)
	ErrNoSuchClue             = errors.New("no such clue")
)

// Showing is the reveal state of a single clue. It only ever moves forward.
type Showing int

const (
	ShowingNone Showing = iota
	ShowingQuestion
	ShowingAnswer
)

// String returns the class name used to style a cell in this state.
func (s Showing) String() string {
	switch s {
	case ShowingQuestion:
		return "question"
	case ShowingAnswer:
		return "answer"
	default:
		return ""
	}
}

type Clue struct {
	ID       int
	Question string
	Answer   string
	Showing  Showing
}

// Advance moves the clue to its next reveal state and returns the text to
// display. Clicking a clue that already shows its answer changes nothing.
func (c *Clue) Advance() (string, bool) {
	switch c.Showing {
	case ShowingNone:
		c.Showing = ShowingQuestion
		return c.Question, true
	case ShowingQuestion:
		c.Showing = ShowingAnswer
		return c.Answer, true
	default:
		return "", false
	}
}

// Text is what a cell for this clue currently displays.
func (c *Clue) Text() string {
	switch c.Showing {
	case ShowingQuestion:
		return c.Question
	case ShowingAnswer:
		return c.Answer
	default:
		return placeholder
	}
}

type Category struct {
	Title string
	Clues []*Clue
}

// Coord addresses one clue on the board: the column (category) and the row
// (clue) of its cell.
type Coord struct {
	Category int `json:"category"`
	Clue     int `json:"clue"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Category, c.Clue)
}

// Cell is the rendered view of a single clue.
type Cell struct {
	Coord
	Text    string
	Showing Showing
	Changed bool
}

// Board is the full grid for one game session. It is not safe for
// concurrent use; the owning hub serializes access.
type Board struct {
	Categories []*Category
}

func (b *Board) clue(c Coord) (*Clue, error) {
	if c.Category < 0 || c.Category >= len(b.Categories) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchClue, c)
	}

	clues := b.Categories[c.Category].Clues
	if c.Clue < 0 || c.Clue >= len(clues) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchClue, c)
	}

	return clues[c.Clue], nil
}

// Reveal advances the clue at c. Coordinates outside the board leave every
// clue untouched and return ErrNoSuchClue.
func (b *Board) Reveal(c Coord) (Cell, error) {
	clue, err := b.clue(c)
	if err != nil {
		return Cell{}, err
	}

	_, changed := clue.Advance()

	return Cell{
		Coord:   c,
		Text:    clue.Text(),
		Showing: clue.Showing,
		Changed: changed,
	}, nil
}

func (b *Board) Titles() []string {
	titles := make([]string, 0, len(b.Categories))
	for _, cat := range b.Categories {
		titles = append(titles, cat.Title)
	}
	return titles
}

// Rows returns the cells row by row, one row per clue index, with one cell
// per category in each row.
func (b *Board) Rows() [][]Cell {
	height := 0
	for _, cat := range b.Categories {
		height = max(height, len(cat.Clues))
	}

	rows := make([][]Cell, height)
	for y := range rows {
		rows[y] = make([]Cell, 0, len(b.Categories))
		for x, cat := range b.Categories {
			if y >= len(cat.Clues) {
				continue
			}
			clue := cat.Clues[y]
			rows[y] = append(rows[y], Cell{
				Coord:   Coord{Category: x, Clue: y},
				Text:    clue.Text(),
				Showing: clue.Showing,
			})
		}
	}

	return rows
}

func shuffled[T any](items []T, rng *rand.Rand) []T {
	var perm []int
	if rng == nil {
		perm = rand.Perm(len(items))
	} else {
		perm = rng.Perm(len(items))
	}

	out := make([]T, len(items))
	for i, j := range perm {
		out[i] = items[j]
	}
	return out
}

// sample picks n items uniformly at random without replacement, or all of
// them in random order if there are fewer than n.
func sample[T any](items []T, n int, rng *rand.Rand) []T {
	out := shuffled(items, rng)
	if n < len(out) {
		out = out[:n]
	}
	return out
}

func selectCategoryIDs(all []APICategory, count int, rng *rand.Rand) []int {
	ids := make([]int, 0, min(count, len(all)))
	for _, cat := range sample(all, count, rng) {
		ids = append(ids, cat.ID)
	}
	return ids
}

func buildCategory(raw []APIClue, count int, rng *rand.Rand) (*Category, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: category has no clues", ErrInsufficientClues)
	}

	usable := make([]APIClue, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Question) == "" || strings.TrimSpace(r.Answer) == "" {
			continue
		}
		usable = append(usable, r)
	}

	title := raw[0].Category.Title

	if len(usable) < count {
		return nil, fmt.Errorf("%w: %q has %d usable of %d required",
			ErrInsufficientClues, title, len(usable), count)
	}

	cat := &Category{
		Title: title,
		Clues: make([]*Clue, 0, count),
	}
	for _, r := range sample(usable, count, rng) {
		cat.Clues = append(cat.Clues, &Clue{
			ID:       r.ID,
			Question: r.Question,
			Answer:   r.Answer,
		})
	}

	return cat, nil
}

type BuildOptions struct {
	// Pool is how many categories to request from the source.
	Pool int
	// MaxAttempts caps the number of clue fetches; zero means no cap.
	MaxAttempts int
	Rand        *rand.Rand
	Logf        func(format string, args ...any)
}

func (o BuildOptions) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// BuildBoard lists categories from src, then fetches clues one category at a
// time in random order until the board is full. Categories without enough
// usable clues are skipped. Running out of candidates or attempts fails with
// ErrInsufficientData; a short board is never returned.
func BuildBoard(ctx context.Context, src CategorySource, opts BuildOptions) (*Board, error) {
	pool := opts.Pool
	if pool < NumCategories {
		pool = defaultCategoryPool
	}

	listed, err := src.Categories(ctx, pool)
	if err != nil {
		return nil, err
	}

	if len(listed) < NumCategories {
		return nil, fmt.Errorf("%w: listed %d of %d required",
			ErrInsufficientCategories, len(listed), NumCategories)
	}

	board := &Board{
		Categories: make([]*Category, 0, NumCategories),
	}

	seen := make(map[int]bool, len(listed))
	attempts := 0

	for _, id := range selectCategoryIDs(listed, len(listed), opts.Rand) {
		if len(board.Categories) == NumCategories {
			break
		}
		if opts.MaxAttempts > 0 && attempts >= opts.MaxAttempts {
			break
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		attempts++

		raw, err := src.Clues(ctx, id)
		if err != nil {
			return nil, err
		}

		cat, err := buildCategory(raw, NumCluesPerCategory, opts.Rand)
		switch {
		case errors.Is(err, ErrInsufficientClues):
			opts.logf("Skipping category %d: %v", id, err)
			continue
		case err != nil:
			return nil, err
		}

		board.Categories = append(board.Categories, cat)
	}

	if len(board.Categories) < NumCategories {
		return nil, fmt.Errorf("%w: built %d of %d categories after %d attempts",
			ErrInsufficientData, len(board.Categories), NumCategories, attempts)
	}

	return board, nil
}
