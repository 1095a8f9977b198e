package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/rules"
)

func category(name string) Category {
	c := Category{Name: name}
	for _, v := range rules.Values {
		c.Questions = append(c.Questions, RawQuestion{
			Value:    v,
			Question: fmt.Sprintf("%s for %d", name, v),
			Answer:   fmt.Sprintf("%s answer %d", name, v),
		})
	}
	return c
}

func testPacks() []*Pack {
	return []*Pack{
		{Name: "alpha", Categories: []Category{category("A1"), category("A2"), category("A3"), category("A4"), category("A5")}},
		{Name: "beta", Categories: []Category{category("B1"), category("B2"), category("B3")}},
	}
}

func newTestProvider(t *testing.T, opts ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(testPacks(), opts...)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return p
}

func config(mode models.CategoryMode, count int) models.SessionConfig {
	cfg := rules.DefaultConfig()
	cfg.CategoryMode = mode
	cfg.QuestionCount = count
	return cfg
}

func TestGenerateBoard_Shape(t *testing.T) {
	p := newTestProvider(t)
	for _, count := range []int{15, 25} {
		board, err := p.GenerateBoard(config(models.CategoryModeTrueRandom, count))
		if err != nil {
			t.Fatalf("GenerateBoard(%d) failed: %v", count, err)
		}
		if board.Size() != count || len(board) != count/5 {
			t.Fatalf("expected %d questions in %d columns, got %d in %d", count, count/5, board.Size(), len(board))
		}
		ids := make(map[string]bool)
		for _, column := range board {
			for r, q := range column {
				if q.Value != rules.Values[r] {
					t.Errorf("row %d should be worth %d, got %d", r, rules.Values[r], q.Value)
				}
				if q.Category != column[0].Category {
					t.Error("a column must hold one category")
				}
				if ids[q.ID] {
					t.Errorf("duplicate question id %s", q.ID)
				}
				ids[q.ID] = true
			}
		}
	}
}

func TestGenerateBoard_DailyDoubles(t *testing.T) {
	p := newTestProvider(t)
	cfg := config(models.CategoryModeTrueRandom, 25)
	cfg.DailyDoubleCount = 3

	board, err := p.GenerateBoard(cfg)
	if err != nil {
		t.Fatalf("GenerateBoard failed: %v", err)
	}
	count := 0
	for _, column := range board {
		for _, q := range column {
			if q.DailyDouble {
				count++
				if q.Value == 200 {
					t.Error("daily doubles must not sit on the lowest row")
				}
			}
		}
	}
	if count != 3 {
		t.Errorf("expected 3 daily doubles, got %d", count)
	}
}

func TestGenerateBoard_Modes(t *testing.T) {
	p := newTestProvider(t, WithFeatured("B2"))

	manual := config(models.CategoryModeManual, 15)
	manual.SelectedCategories = []string{"B3", "a1", "A4"}
	board, err := p.GenerateBoard(manual)
	if err != nil {
		t.Fatalf("manual GenerateBoard failed: %v", err)
	}
	if board[0][0].Category != "B3" || board[1][0].Category != "A1" || board[2][0].Category != "A4" {
		t.Error("manual mode should keep the selected order")
	}

	pack := config(models.CategoryModePack, 15)
	pack.PackName = "beta"
	board, err = p.GenerateBoard(pack)
	if err != nil {
		t.Fatalf("pack GenerateBoard failed: %v", err)
	}
	for _, column := range board {
		if column[0].Category[0] != 'B' {
			t.Errorf("pack mode used foreign category %s", column[0].Category)
		}
	}

	random := config(models.CategoryModeRandom, 15)
	for i := 0; i < 10; i++ {
		board, err = p.GenerateBoard(random)
		if err != nil {
			t.Fatalf("random GenerateBoard failed: %v", err)
		}
		found := false
		for _, column := range board {
			found = found || column[0].Category == "B2"
		}
		if !found {
			t.Fatal("random mode should always include featured categories")
		}
	}
}

func TestValidateConfig(t *testing.T) {
	p := newTestProvider(t)

	pack := config(models.CategoryModePack, 25)
	pack.PackName = "beta"
	if err := p.ValidateConfig(pack); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("pack with 3 categories cannot fill 25 cells, got %v", err)
	}
	pack.PackName = "missing"
	if err := p.ValidateConfig(pack); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("unknown pack should fail, got %v", err)
	}

	manual := config(models.CategoryModeManual, 15)
	manual.SelectedCategories = []string{"A1", "A2", "Nope"}
	if err := p.ValidateConfig(manual); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("unknown category should fail, got %v", err)
	}
	if _, err := p.GenerateBoard(manual); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("GenerateBoard should validate first, got %v", err)
	}
}

func TestNewProvider_SkipsIncompleteCategories(t *testing.T) {
	broken := category("Broken")
	broken.Questions = broken.Questions[:4]
	p, err := NewProvider([]*Pack{{Name: "x", Categories: []Category{category("Ok"), broken}}})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	names, _ := p.Categories("x")
	if len(names) != 1 || names[0] != "Ok" {
		t.Errorf("incomplete category should be skipped, got %v", names)
	}

	if _, err := NewProvider([]*Pack{{Name: "y", Categories: []Category{broken}}}); err == nil {
		t.Error("a provider without usable categories should fail")
	}
	if _, err := NewProvider([]*Pack{{Name: "z", Categories: []Category{category("1")}}, {Name: "z"}}); err == nil {
		t.Error("duplicate pack names should fail")
	}
}

func TestFinalQuestion(t *testing.T) {
	p := newTestProvider(t)
	q, err := p.FinalQuestion()
	if err != nil {
		t.Fatalf("FinalQuestion failed: %v", err)
	}
	if q.Value != 0 || q.DailyDouble || q.Answer == "" || q.Category == "" {
		t.Errorf("unexpected final question %+v", q)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	yamlPack := "description: y\ncategories:\n  - name: Y\n    questions:\n      - {value: 200, question: q, answer: a}\n"
	jsonPack := `{"name":"json-pack","categories":[{"name":"J","questions":[{"value":200,"question":"q","answer":"a","choices":["a","b"]}]}]}`
	os.WriteFile(filepath.Join(dir, "yaml-pack.yaml"), []byte(yamlPack), 0o644)
	os.WriteFile(filepath.Join(dir, "other.json"), []byte(jsonPack), 0o644)
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644)

	packs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	names := map[string]*Pack{}
	for _, p := range packs {
		names[p.Name] = p
	}
	if len(packs) != 2 || names["yaml-pack"] == nil || names["json-pack"] == nil {
		t.Fatalf("unexpected packs %v", names)
	}
	if got := names["json-pack"].Categories[0].Questions[0].Choices; len(got) != 2 {
		t.Errorf("choices should decode, got %v", got)
	}

	if _, err := LoadDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing dir should fail")
	}
}

func TestShippedPacks(t *testing.T) {
	packs, err := LoadDir("../packs")
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	p, err := NewProvider(packs)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	for _, name := range p.Packs() {
		cats, _ := p.Categories(name)
		if len(cats) < 3 {
			t.Errorf("pack %s should fill at least a 15-question board, has %d categories", name, len(cats))
		}
	}
	if _, err := p.GenerateBoard(config(models.CategoryModeRandom, 25)); err != nil {
		t.Errorf("shipped packs should fill a 25-question board: %v", err)
	}
}
