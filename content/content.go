// Package content loads question packs and builds boards from them.
package content

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/rules"
	"gopkg.in/yaml.v3"
)

// RawQuestion is one entry of a pack file. Choices is accepted as an alias of Options.
type RawQuestion struct {
	Value    int      `yaml:"value"`
	Question string   `yaml:"question"`
	Answer   string   `yaml:"answer"`
	Options  []string `yaml:"options,omitempty"`
	Choices  []string `yaml:"choices,omitempty"`
}

type Category struct {
	Name      string        `yaml:"name"`
	Questions []RawQuestion `yaml:"questions"`
}

type Pack struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Categories  []Category `yaml:"categories"`
}

// LoadDir reads every .yaml, .yml and .json pack in dir. A pack without a name is
// named after its file.
func LoadDir(dir string) ([]*Pack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read packs dir: %w", err)
	}
	var packs []*Pack
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		pack, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		packs = append(packs, pack)
	}
	return packs, nil
}

// LoadFile decodes one pack. JSON packs parse as YAML.
func LoadFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack %s: %w", path, err)
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("decode pack %s: %w", path, err)
	}
	if pack.Name == "" {
		pack.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &pack, nil
}

// Option configures a Provider.
type Option func(*Provider)

// WithRandom replaces the source used for shuffles and picks.
func WithRandom(intn func(n int) int) Option {
	return func(p *Provider) { p.intn = intn }
}

// WithFeatured names categories always placed on random-mode boards when present.
func WithFeatured(names ...string) Option {
	return func(p *Provider) { p.featured = names }
}

// Provider serves boards and final-round questions from loaded packs.
type Provider struct {
	packs    map[string]*Pack
	order    []string
	all      []Category
	featured []string
	intn     func(n int) int
}

// NewProvider indexes packs. Categories missing a question for any board value are
// skipped with a warning.
func NewProvider(packs []*Pack, opts ...Option) (*Provider, error) {
	p := &Provider{
		packs: make(map[string]*Pack),
		intn:  rand.Intn,
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, pack := range packs {
		if _, dup := p.packs[pack.Name]; dup {
			return nil, fmt.Errorf("duplicate pack %q", pack.Name)
		}
		usable := &Pack{Name: pack.Name, Description: pack.Description}
		for _, c := range pack.Categories {
			if missing, ok := missingValue(c); ok {
				logger.Log.Warnf("pack %s: category %q has no $%d question, skipped", pack.Name, c.Name, missing)
				continue
			}
			usable.Categories = append(usable.Categories, c)
			p.all = append(p.all, c)
		}
		p.packs[pack.Name] = usable
		p.order = append(p.order, pack.Name)
	}
	if len(p.all) == 0 {
		return nil, fmt.Errorf("no usable categories in %d packs", len(packs))
	}
	sort.Strings(p.order)
	return p, nil
}

func missingValue(c Category) (int, bool) {
	have := make(map[int]bool)
	for _, q := range c.Questions {
		have[q.Value] = true
	}
	for _, v := range rules.Values {
		if !have[v] {
			return v, true
		}
	}
	return 0, false
}

// Packs lists pack names.
func (p *Provider) Packs() []string {
	return append([]string(nil), p.order...)
}

// Categories lists the usable categories of pack.
func (p *Provider) Categories(pack string) ([]string, error) {
	pk, ok := p.packs[pack]
	if !ok {
		return nil, models.Errorf(models.KindInvalidConfiguration, "unknown question pack %q", pack)
	}
	names := make([]string, 0, len(pk.Categories))
	for _, c := range pk.Categories {
		names = append(names, c.Name)
	}
	return names, nil
}

// ValidateConfig checks that cfg can be served by the loaded content.
func (p *Provider) ValidateConfig(cfg models.SessionConfig) error {
	if err := rules.ValidateConfig(cfg); err != nil {
		return err
	}
	need := rules.CategoriesFor(cfg.QuestionCount)
	switch cfg.CategoryMode {
	case models.CategoryModePack:
		pk, ok := p.packs[cfg.PackName]
		if !ok {
			return models.Errorf(models.KindInvalidConfiguration, "unknown question pack %q", cfg.PackName)
		}
		if len(pk.Categories) < need {
			return models.Errorf(models.KindInvalidConfiguration, "pack %q has insufficient categories", cfg.PackName)
		}
	case models.CategoryModeManual:
		for _, name := range cfg.SelectedCategories {
			if _, ok := p.find(name); !ok {
				return models.Errorf(models.KindInvalidConfiguration, "category %q not found", name)
			}
		}
	default:
		if len(p.all) < need {
			return models.Errorf(models.KindInvalidConfiguration, "only %d categories available", len(p.all))
		}
	}
	return nil
}

func (p *Provider) find(name string) (Category, bool) {
	for _, c := range p.all {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Category{}, false
}

func (p *Provider) shuffle(categories []Category) []Category {
	out := append([]Category(nil), categories...)
	for i := len(out) - 1; i > 0; i-- {
		j := p.intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (p *Provider) choose(cfg models.SessionConfig, need int) []Category {
	switch cfg.CategoryMode {
	case models.CategoryModePack:
		return p.shuffle(p.packs[cfg.PackName].Categories)[:need]
	case models.CategoryModeManual:
		chosen := make([]Category, 0, need)
		for _, name := range cfg.SelectedCategories {
			c, _ := p.find(name)
			chosen = append(chosen, c)
		}
		return chosen
	case models.CategoryModeRandom:
		var featured, rest []Category
		for _, c := range p.all {
			if containsFold(p.featured, c.Name) && len(featured) < need {
				featured = append(featured, c)
			} else {
				rest = append(rest, c)
			}
		}
		chosen := append(featured, p.shuffle(rest)[:need-len(featured)]...)
		return p.shuffle(chosen)
	default:
		return p.shuffle(p.all)[:need]
	}
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// GenerateBoard builds one column per chosen category with one question per board value,
// then marks daily doubles on cells worth more than the lowest value.
func (p *Provider) GenerateBoard(cfg models.SessionConfig) (models.Board, error) {
	if err := p.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	need := rules.CategoriesFor(cfg.QuestionCount)
	stamp := uuid.NewString()[:8]

	board := make(models.Board, 0, need)
	for c, category := range p.choose(cfg, need) {
		column := make([]*models.Question, 0, len(rules.Values))
		for r, value := range rules.Values {
			raw := p.pick(category, value)
			options := raw.Options
			if options == nil {
				options = raw.Choices
			}
			column = append(column, &models.Question{
				ID:       fmt.Sprintf("q_%d_%d_%s", c, r, stamp),
				Category: category.Name,
				Value:    value,
				Prompt:   raw.Question,
				Answer:   raw.Answer,
				Options:  options,
			})
		}
		board = append(board, column)
	}
	p.placeDailyDoubles(board, cfg.DailyDoubleCount)
	return board, nil
}

func (p *Provider) pick(c Category, value int) RawQuestion {
	var bucket []RawQuestion
	for _, q := range c.Questions {
		if q.Value == value {
			bucket = append(bucket, q)
		}
	}
	return bucket[p.intn(len(bucket))]
}

func (p *Provider) placeDailyDoubles(board models.Board, count int) {
	var eligible []*models.Question
	for _, column := range board {
		for _, q := range column {
			if q.Value != rules.Values[0] {
				eligible = append(eligible, q)
			}
		}
	}
	for i := len(eligible) - 1; i > 0; i-- {
		j := p.intn(i + 1)
		eligible[i], eligible[j] = eligible[j], eligible[i]
	}
	for _, q := range eligible[:min(count, len(eligible))] {
		q.DailyDouble = true
	}
}

// FinalQuestion draws a high-value question from a random category.
func (p *Provider) FinalQuestion() (*models.Question, error) {
	for _, idx := range p.permutation(len(p.all)) {
		c := p.all[idx]
		var pool []RawQuestion
		for _, q := range c.Questions {
			if q.Value >= 800 {
				pool = append(pool, q)
			}
		}
		if len(pool) == 0 {
			continue
		}
		raw := pool[p.intn(len(pool))]
		options := raw.Options
		if options == nil {
			options = raw.Choices
		}
		return &models.Question{
			ID:       "final_" + uuid.NewString(),
			Category: c.Name,
			Prompt:   raw.Question,
			Answer:   raw.Answer,
			Options:  options,
		}, nil
	}
	return nil, models.Errorf(models.KindInvalidConfiguration, "no final round question available")
}

func (p *Provider) permutation(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := p.intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}
