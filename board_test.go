/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
)

type fakeSource struct {
	categories []APICategory
	clues      map[int][]APIClue
	calls      []int
	listErr    error
	cluesErr   error
}

func newFakeSource(numCategories, cluesPerCategory int) *fakeSource {
	s := &fakeSource{clues: make(map[int][]APIClue)}
	for i := 1; i <= numCategories; i++ {
		s.addCategory(i, cluesPerCategory)
	}
	return s
}

func (s *fakeSource) addCategory(id, numClues int) {
	cat := APICategory{ID: id, Title: fmt.Sprintf("category %d", id), CluesCount: numClues}
	s.categories = append(s.categories, cat)
	s.clues[id] = nil
	for j := 0; j < numClues; j++ {
		s.clues[id] = append(s.clues[id], APIClue{
			ID:       id*100 + j,
			Question: fmt.Sprintf("question %d-%d", id, j),
			Answer:   fmt.Sprintf("answer %d-%d", id, j),
			Value:    (j + 1) * 200,
			Category: cat,
		})
	}
}

func (s *fakeSource) Categories(_ context.Context, count int) ([]APICategory, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if count < len(s.categories) {
		return s.categories[:count], nil
	}
	return s.categories, nil
}

func (s *fakeSource) Clues(_ context.Context, categoryID int) ([]APIClue, error) {
	s.calls = append(s.calls, categoryID)
	if s.cluesErr != nil {
		return nil, s.cluesErr
	}
	return s.clues[categoryID], nil
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func newTestBoard(t *testing.T) *Board {
	t.Helper()

	board, err := BuildBoard(context.Background(), newFakeSource(10, 6), BuildOptions{Rand: testRand()})
	if err != nil {
		t.Fatalf("build board: %v", err)
	}
	return board
}

func TestClueAdvanceSequence(t *testing.T) {
	c := &Clue{Question: "2+2", Answer: "4"}

	if c.Showing != ShowingNone || c.Text() != placeholder {
		t.Fatalf("new clue should be hidden, got %v %q", c.Showing, c.Text())
	}

	want := []struct {
		text    string
		changed bool
		showing Showing
	}{
		{"2+2", true, ShowingQuestion},
		{"4", true, ShowingAnswer},
		{"", false, ShowingAnswer},
		{"", false, ShowingAnswer},
	}

	for i, w := range want {
		text, changed := c.Advance()
		if text != w.text || changed != w.changed || c.Showing != w.showing {
			t.Fatalf("click %d: got (%q, %v, %v), want (%q, %v, %v)",
				i+1, text, changed, c.Showing, w.text, w.changed, w.showing)
		}
	}

	if c.Text() != "4" {
		t.Fatalf("answered clue should keep showing the answer, got %q", c.Text())
	}
}

func TestShowingString(t *testing.T) {
	if ShowingNone.String() != "" || ShowingQuestion.String() != "question" || ShowingAnswer.String() != "answer" {
		t.Fatal("unexpected class names for reveal states")
	}
}

func TestRevealTerminalIsIdempotent(t *testing.T) {
	board := newTestBoard(t)
	at := Coord{Category: 1, Clue: 1}

	board.Reveal(at)
	answered, err := board.Reveal(at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !answered.Changed || answered.Showing != ShowingAnswer {
		t.Fatalf("second click should show the answer, got %+v", answered)
	}

	for i := 0; i < 3; i++ {
		cell, err := board.Reveal(at)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cell.Changed || cell.Showing != ShowingAnswer || cell.Text != answered.Text {
			t.Fatalf("click on answered clue changed it: %+v", cell)
		}
	}
}

func TestRevealCoordinateIsolation(t *testing.T) {
	board := newTestBoard(t)

	cell, err := board.Reveal(Coord{Category: 2, Clue: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cell.Text != board.Categories[2].Clues[3].Question {
		t.Fatalf("expected question text, got %q", cell.Text)
	}

	for x, cat := range board.Categories {
		for y, clue := range cat.Clues {
			if x == 2 && y == 3 {
				continue
			}
			if clue.Showing != ShowingNone {
				t.Fatalf("clue (%d,%d) changed after clicking (2,3)", x, y)
			}
		}
	}
}

func TestRevealOutOfRange(t *testing.T) {
	board := newTestBoard(t)

	for _, at := range []Coord{
		{Category: -1, Clue: 0},
		{Category: NumCategories, Clue: 0},
		{Category: 0, Clue: -1},
		{Category: 0, Clue: NumCluesPerCategory},
	} {
		if _, err := board.Reveal(at); !errors.Is(err, ErrNoSuchClue) {
			t.Fatalf("reveal %s: expected ErrNoSuchClue, got %v", at, err)
		}
	}

	for _, row := range board.Rows() {
		for _, cell := range row {
			if cell.Showing != ShowingNone {
				t.Fatalf("invalid click changed %s", cell.Coord)
			}
		}
	}
}

func TestBoardRows(t *testing.T) {
	board := newTestBoard(t)
	board.Reveal(Coord{Category: 4, Clue: 0})

	rows := board.Rows()
	if len(rows) != NumCluesPerCategory {
		t.Fatalf("expected %d rows, got %d", NumCluesPerCategory, len(rows))
	}
	for y, row := range rows {
		if len(row) != NumCategories {
			t.Fatalf("row %d: expected %d cells, got %d", y, NumCategories, len(row))
		}
		for x, cell := range row {
			if cell.Category != x || cell.Clue != y {
				t.Fatalf("cell at row %d col %d has coord %s", y, x, cell.Coord)
			}
		}
	}

	if rows[0][4].Showing != ShowingQuestion || rows[0][4].Text != board.Categories[4].Clues[0].Question {
		t.Fatalf("revealed cell not reflected in rows: %+v", rows[0][4])
	}
	if rows[1][4].Text != placeholder {
		t.Fatalf("hidden cell should show placeholder, got %q", rows[1][4].Text)
	}
}

func TestSelectCategoryIDs(t *testing.T) {
	src := newFakeSource(100, 5)

	ids := selectCategoryIDs(src.categories, NumCategories, testRand())
	if len(ids) != NumCategories {
		t.Fatalf("expected %d ids, got %d", NumCategories, len(ids))
	}

	seen := make(map[int]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("category %d selected twice", id)
		}
		seen[id] = true
	}

	if short := selectCategoryIDs(src.categories[:3], NumCategories, testRand()); len(short) != 3 {
		t.Fatalf("expected all 3 ids from a short list, got %d", len(short))
	}
}

func TestBuildCategory(t *testing.T) {
	cat := APICategory{ID: 7, Title: "math"}
	raw := make([]APIClue, 0, 6)
	for i := 0; i < 6; i++ {
		raw = append(raw, APIClue{ID: i + 1, Question: "2+2", Answer: "4", Category: cat})
	}

	got, err := buildCategory(raw, NumCluesPerCategory, testRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Title != "math" {
		t.Fatalf("expected title %q, got %q", "math", got.Title)
	}
	if len(got.Clues) != NumCluesPerCategory {
		t.Fatalf("expected %d clues, got %d", NumCluesPerCategory, len(got.Clues))
	}

	seen := make(map[int]bool)
	for _, c := range got.Clues {
		if c.ID < 1 || c.ID > 6 {
			t.Fatalf("clue %d was not drawn from the source", c.ID)
		}
		if seen[c.ID] {
			t.Fatalf("clue %d drawn twice", c.ID)
		}
		seen[c.ID] = true

		if c.Question != "2+2" || c.Answer != "4" || c.Showing != ShowingNone {
			t.Fatalf("unexpected clue %+v", c)
		}
	}
}

func TestBuildCategorySkipsBlankClues(t *testing.T) {
	cat := APICategory{ID: 1, Title: "potpourri"}
	raw := []APIClue{
		{ID: 1, Question: "a", Answer: "", Category: cat},
		{ID: 2, Question: " ", Answer: "b", Category: cat},
		{ID: 3, Question: "c", Answer: "d", Category: cat},
		{ID: 4, Question: "e", Answer: "f", Category: cat},
		{ID: 5, Question: "g", Answer: "h", Category: cat},
		{ID: 6, Question: "i", Answer: "j", Category: cat},
	}

	_, err := buildCategory(raw, NumCluesPerCategory, testRand())
	if !errors.Is(err, ErrInsufficientClues) || !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientClues, got %v", err)
	}

	got, err := buildCategory(raw, 4, testRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range got.Clues {
		if c.ID < 3 {
			t.Fatalf("blank clue %d was selected", c.ID)
		}
	}
}

func TestBuildCategoryEmpty(t *testing.T) {
	if _, err := buildCategory(nil, NumCluesPerCategory, testRand()); !errors.Is(err, ErrInsufficientClues) {
		t.Fatalf("expected ErrInsufficientClues, got %v", err)
	}
}

func TestBuildBoard(t *testing.T) {
	src := newFakeSource(100, 8)

	board, err := BuildBoard(context.Background(), src, BuildOptions{Pool: 100, Rand: testRand()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(board.Categories) != NumCategories {
		t.Fatalf("expected %d categories, got %d", NumCategories, len(board.Categories))
	}
	if len(src.calls) != NumCategories {
		t.Fatalf("expected %d clue fetches, got %d", NumCategories, len(src.calls))
	}

	titles := make(map[string]bool)
	for i, cat := range board.Categories {
		if want := fmt.Sprintf("category %d", src.calls[i]); cat.Title != want {
			t.Fatalf("category %d: expected title %q in fetch order, got %q", i, want, cat.Title)
		}
		if titles[cat.Title] {
			t.Fatalf("category %q selected twice", cat.Title)
		}
		titles[cat.Title] = true

		if len(cat.Clues) != NumCluesPerCategory {
			t.Fatalf("category %q: expected %d clues, got %d", cat.Title, NumCluesPerCategory, len(cat.Clues))
		}
	}
}

func TestBuildBoardSkipsShortCategories(t *testing.T) {
	src := newFakeSource(0, 0)
	for id := 1; id <= 20; id++ {
		if id%2 == 0 {
			src.addCategory(id, 2)
		} else {
			src.addCategory(id, 5)
		}
	}

	var skipped int
	board, err := BuildBoard(context.Background(), src, BuildOptions{
		Rand: testRand(),
		Logf: func(string, ...any) { skipped++ },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, cat := range board.Categories {
		if len(cat.Clues) != NumCluesPerCategory {
			t.Fatalf("short category %q made it onto the board", cat.Title)
		}
	}
	if len(src.calls) != NumCategories+skipped {
		t.Fatalf("expected %d fetches, got %d", NumCategories+skipped, len(src.calls))
	}
}

func TestBuildBoardTooFewCategories(t *testing.T) {
	src := newFakeSource(NumCategories-1, 5)

	_, err := BuildBoard(context.Background(), src, BuildOptions{Rand: testRand()})
	if !errors.Is(err, ErrInsufficientCategories) || !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientCategories, got %v", err)
	}
	if len(src.calls) != 0 {
		t.Fatalf("expected no clue fetches, got %d", len(src.calls))
	}
}

func TestBuildBoardMaxAttempts(t *testing.T) {
	src := newFakeSource(50, 3)

	_, err := BuildBoard(context.Background(), src, BuildOptions{MaxAttempts: 10, Rand: testRand()})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if len(src.calls) != 10 {
		t.Fatalf("expected 10 fetches, got %d", len(src.calls))
	}
}

func TestBuildBoardDuplicateIDs(t *testing.T) {
	src := newFakeSource(NumCategories, 5)
	src.categories = append(src.categories, src.categories...)

	board, err := BuildBoard(context.Background(), src, BuildOptions{Rand: testRand()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[int]bool)
	for _, id := range src.calls {
		if seen[id] {
			t.Fatalf("category %d fetched twice", id)
		}
		seen[id] = true
	}
	if len(board.Categories) != NumCategories {
		t.Fatalf("expected %d categories, got %d", NumCategories, len(board.Categories))
	}
}

func TestBuildBoardFetchErrors(t *testing.T) {
	listErr := &FetchError{Endpoint: "categories", Status: 500}
	src := newFakeSource(10, 5)
	src.listErr = listErr

	if _, err := BuildBoard(context.Background(), src, BuildOptions{}); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch from listing, got %v", err)
	}

	src = newFakeSource(10, 5)
	src.cluesErr = &FetchError{Endpoint: "clues", Err: context.DeadlineExceeded}

	_, err := BuildBoard(context.Background(), src, BuildOptions{})
	if !errors.Is(err, ErrFetch) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if len(src.calls) != 1 {
		t.Fatalf("expected build to stop after the first failure, got %d fetches", len(src.calls))
	}
}

func TestTwoPlusTwoScenario(t *testing.T) {
	src := newFakeSource(100, 5)

	math := APICategory{ID: 42, Title: "math"}
	src.clues[42] = nil
	for i := 0; i < 6; i++ {
		src.clues[42] = append(src.clues[42], APIClue{ID: 4200 + i, Question: "2+2", Answer: "4", Category: math})
	}

	listed, err := src.Categories(context.Background(), 100)
	if err != nil || len(listed) != 100 {
		t.Fatalf("expected 100 categories, got %d (%v)", len(listed), err)
	}

	raw, _ := src.Clues(context.Background(), 42)
	cat, err := buildCategory(raw, NumCluesPerCategory, testRand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cat.Clues) != 5 {
		t.Fatalf("expected 5 clues, got %d", len(cat.Clues))
	}

	board := &Board{Categories: []*Category{cat}}
	first := Coord{Category: 0, Clue: 0}

	cell, _ := board.Reveal(first)
	if cell.Text != "2+2" || cell.Showing != ShowingQuestion {
		t.Fatalf("first click: got %+v", cell)
	}

	cell, _ = board.Reveal(first)
	if cell.Text != "4" || cell.Showing != ShowingAnswer {
		t.Fatalf("second click: got %+v", cell)
	}

	cell, _ = board.Reveal(first)
	if cell.Changed || cell.Text != "4" || cell.Showing != ShowingAnswer {
		t.Fatalf("third click: got %+v", cell)
	}
}
