// internal/scenario/loader.go
package scenario

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/lancet/internal/frames"
	"github.com/xkilldash9x/lancet/internal/interaction"
	"github.com/xkilldash9x/lancet/internal/locator"
)

// SourceBuiltin is the Source of catalog scenarios.
const SourceBuiltin = "builtin"

//go:embed catalog/*.yaml
var catalogFS embed.FS

// fileScenario is the on-disk shape of a scenario.
type fileScenario struct {
	Name              string         `yaml:"name"`
	ID                string         `yaml:"id"`
	Description       string         `yaml:"description"`
	URL               string         `yaml:"url"`
	NavigationTimeout time.Duration  `yaml:"navigation_timeout"`
	ReadinessTimeout  time.Duration  `yaml:"readiness_timeout"`
	Hold              *time.Duration `yaml:"hold"`
	Steps             []fileStep     `yaml:"steps"`
	Assertion         fileAssertion  `yaml:"assertion"`
}

type fileStep struct {
	Intent   string         `yaml:"intent"`
	Locator  string         `yaml:"locator"`
	Frame    string         `yaml:"frame"`
	Index    int            `yaml:"index"`
	Action   string         `yaml:"action"`
	Files    []string       `yaml:"files"`
	Duration time.Duration  `yaml:"duration"`
	Timeout  time.Duration  `yaml:"timeout"`
	Settle   *time.Duration `yaml:"settle"`
	Name     string         `yaml:"name"`
}

type fileAssertion struct {
	Locator         string        `yaml:"locator"`
	Frame           string        `yaml:"frame"`
	Index           int           `yaml:"index"`
	Polarity        string        `yaml:"polarity"`
	Timeout         time.Duration `yaml:"timeout"`
	Description     string        `yaml:"description"`
	SuspectPolarity bool          `yaml:"suspect_polarity"`
}

// Parse decodes every YAML document in data into a scenario. source is
// recorded on each result and used in error messages.
func Parse(data []byte, source string) ([]*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []*Scenario
	for i := 0; ; i++ {
		var fsc fileScenario
		err := dec.Decode(&fsc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", source, i+1, err)
		}
		sc, err := fsc.build()
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", source, i+1, err)
		}
		sc.Source = source
		out = append(out, sc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no scenarios found", source)
	}
	return out, nil
}

// LoadFile reads the scenarios in one file. A leading ~ is expanded.
func LoadFile(p string) ([]*Scenario, error) {
	p, err := homedir.Expand(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data, p)
}

// LoadDir reads every .yaml and .yml file in dir, in name order.
func LoadDir(dir string) ([]*Scenario, error) {
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var out []*Scenario
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		scs, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, scs...)
	}
	return out, checkUnique(out)
}

// Catalog returns the built-in scenarios sorted by ID, then name.
func Catalog() ([]*Scenario, error) {
	var out []*Scenario
	err := fs.WalkDir(catalogFS, "catalog", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isYAML(p) {
			return err
		}
		data, err := catalogFS.ReadFile(p)
		if err != nil {
			return err
		}
		scs, err := Parse(data, path.Base(p))
		if err != nil {
			return err
		}
		for _, sc := range scs {
			sc.Source = SourceBuiltin
		}
		out = append(out, scs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in catalog: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, checkUnique(out)
}

// Select resolves command line arguments into scenarios. Each argument is
// a scenario file, a directory of them, or the name or ID of a built-in
// scenario. No arguments selects the whole catalog.
func Select(args []string) ([]*Scenario, error) {
	catalog, err := Catalog()
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return catalog, nil
	}

	var out []*Scenario
	for _, arg := range args {
		if sc := find(catalog, arg); sc != nil {
			out = append(out, sc)
			continue
		}
		p, err := homedir.Expand(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		switch {
		case err != nil:
			return nil, fmt.Errorf("no built-in scenario or file named %q", arg)
		case info.IsDir():
			scs, err := LoadDir(p)
			if err != nil {
				return nil, err
			}
			out = append(out, scs...)
		default:
			scs, err := LoadFile(p)
			if err != nil {
				return nil, err
			}
			out = append(out, scs...)
		}
	}
	return out, checkUnique(out)
}

func find(scs []*Scenario, key string) *Scenario {
	for _, sc := range scs {
		if strings.EqualFold(sc.Name, key) || (sc.ID != "" && strings.EqualFold(sc.ID, key)) {
			return sc
		}
	}
	return nil
}

func checkUnique(scs []*Scenario) error {
	seen := make(map[string]string, len(scs))
	for _, sc := range scs {
		if prev, ok := seen[sc.Name]; ok {
			return fmt.Errorf("duplicate scenario name %q in %s and %s", sc.Name, prev, sc.Source)
		}
		seen[sc.Name] = sc.Source
	}
	return nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func (f fileScenario) build() (*Scenario, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return nil, errors.New("scenario name is required")
	}
	if f.NavigationTimeout < 0 || f.ReadinessTimeout < 0 {
		return nil, fmt.Errorf("scenario %q: timeouts cannot be negative", name)
	}
	if f.Hold != nil && *f.Hold < 0 {
		return nil, fmt.Errorf("scenario %q: hold cannot be negative", name)
	}

	sc := &Scenario{
		Name:              name,
		ID:                strings.TrimSpace(f.ID),
		Description:       strings.TrimSpace(f.Description),
		URL:               strings.TrimSpace(f.URL),
		NavigationTimeout: f.NavigationTimeout,
		ReadinessTimeout:  f.ReadinessTimeout,
		Hold:              f.Hold,
		Steps:             make([]Step, 0, len(f.Steps)),
	}
	for i, fst := range f.Steps {
		st, err := fst.build()
		if err != nil {
			return nil, fmt.Errorf("scenario %q: step %d: %w", name, i+1, err)
		}
		sc.Steps = append(sc.Steps, st)
	}
	a, err := f.Assertion.build()
	if err != nil {
		return nil, fmt.Errorf("scenario %q: assertion: %w", name, err)
	}
	sc.Assertion = a
	return sc, nil
}

func (f fileStep) build() (Step, error) {
	kind, err := interaction.ParseKind(f.Action)
	if err != nil {
		return Step{}, err
	}
	if f.Timeout < 0 {
		return Step{}, errors.New("timeout cannot be negative")
	}
	if f.Settle != nil && *f.Settle < 0 {
		return Step{}, errors.New("settle cannot be negative")
	}
	st := Step{
		Intent:  strings.TrimSpace(f.Intent),
		Action:  interaction.Action{Kind: kind, Files: f.Files, Duration: f.Duration},
		Timeout: f.Timeout,
		Settle:  f.Settle,
		Name:    strings.TrimSpace(f.Name),
	}

	switch kind {
	case interaction.Wait:
		if f.Duration <= 0 {
			return Step{}, errors.New("wait requires a positive duration")
		}
	case interaction.Upload:
		if len(f.Files) == 0 {
			return Step{}, errors.New("upload requires at least one file")
		}
	}
	if !kind.NeedsElement() {
		if f.Locator != "" {
			return Step{}, fmt.Errorf("%s does not take a locator", kind)
		}
		return st, nil
	}

	loc, err := buildLocator(f.Locator, f.Frame, f.Index)
	if err != nil {
		return Step{}, err
	}
	st.Locator = loc
	return st, nil
}

func (f fileAssertion) build() (Assertion, error) {
	loc, err := buildLocator(f.Locator, f.Frame, f.Index)
	if err != nil {
		return Assertion{}, err
	}
	pol := Polarity(strings.ToLower(strings.TrimSpace(f.Polarity)))
	switch pol {
	case "":
		pol = Visible
	case Visible, Absent:
	default:
		return Assertion{}, fmt.Errorf("polarity must be %q or %q, got %q", Visible, Absent, f.Polarity)
	}
	if f.Timeout < 0 {
		return Assertion{}, errors.New("timeout cannot be negative")
	}
	a := Assertion{
		Locator:         loc,
		Polarity:        pol,
		Timeout:         f.Timeout,
		Description:     strings.TrimSpace(f.Description),
		SuspectPolarity: f.SuspectPolarity,
	}
	if !a.SuspectPolarity {
		a.SuspectPolarity = looksInverted(a)
	}
	return a, nil
}

func buildLocator(raw, frame string, index int) (locator.Locator, error) {
	if strings.TrimSpace(raw) == "" {
		return locator.Locator{}, errors.New("locator is required")
	}
	strategy, err := locator.Parse(raw)
	if err != nil {
		return locator.Locator{}, err
	}
	target, err := frames.ParseTarget(frame)
	if err != nil {
		return locator.Locator{}, err
	}
	if index < 0 {
		return locator.Locator{}, fmt.Errorf("index cannot be negative, got %d", index)
	}
	return locator.Locator{Frame: target, Strategy: strategy, Index: index}, nil
}

// failureWords mark text that normally signals something went wrong.
var failureWords = []string{"error", "fail", "exception", "crash"}

// looksInverted flags a visible-polarity text assertion that waits for
// failure wording to appear.
func looksInverted(a Assertion) bool {
	if a.Polarity != Visible || a.Locator.Strategy.Kind != locator.KindText {
		return false
	}
	needle := strings.ToLower(a.Locator.Strategy.Value)
	for _, w := range failureWords {
		if strings.Contains(needle, w) {
			return true
		}
	}
	return false
}
