package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

var (
	ErrNotFound = errors.New("no such style or story")
	ErrInvalid  = errors.New("invalid content record")
)

const DefaultLanguage = "en"

var languageRE = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2})?$`)

// Record is one style (prompt for a generated story) or story (literal text)
// together with its background video and narration language.
type Record struct {
	Name     string `json:"-" toml:"-"`
	Prompt   string `json:"prompt,omitempty" toml:"prompt"`
	Story    string `json:"story,omitempty" toml:"story"`
	Video    string `json:"video" toml:"video"`
	Language string `json:"language,omitempty" toml:"language"`
}

func (r Record) Validate() error {
	hasPrompt := strings.TrimSpace(r.Prompt) != ""
	hasStory := strings.TrimSpace(r.Story) != ""
	switch {
	case hasPrompt && hasStory:
		return fmt.Errorf("%w %q: prompt and story are mutually exclusive", ErrInvalid, r.Name)
	case !hasPrompt && !hasStory:
		return fmt.Errorf("%w %q: one of prompt or story is required", ErrInvalid, r.Name)
	}
	if strings.TrimSpace(r.Video) == "" {
		return fmt.Errorf("%w %q: video is required", ErrInvalid, r.Name)
	}
	if r.Language != "" && !languageRE.MatchString(r.Language) {
		return fmt.Errorf("%w %q: language %q is not an ISO code", ErrInvalid, r.Name, r.Language)
	}
	return nil
}

// Generated reports whether the transcript comes from a story generator.
func (r Record) Generated() bool { return strings.TrimSpace(r.Prompt) != "" }

func (r Record) Lang() string {
	if r.Language == "" {
		return DefaultLanguage
	}
	return r.Language
}

type file struct {
	Styles  map[string]Record `json:"styles" toml:"styles"`
	Stories map[string]Record `json:"stories" toml:"stories"`
}

// Catalog is a validated set of records keyed by unique name.
type Catalog struct {
	// Dir is the directory of the source file; relative videos resolve against it.
	Dir       string
	records   map[string]Record
	Undecoded []string
}

// LoadFile reads a .toml or .json catalog. Styles may only carry prompts and
// stories may only carry literal text.
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var f file
	c := &Catalog{Dir: filepath.Dir(path)}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(b), &f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, k := range md.Undecoded() {
			c.Undecoded = append(c.Undecoded, k.String())
		}
	default:
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := c.add(f); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCatalog builds a catalog from records already in memory.
func NewCatalog(records ...Record) (*Catalog, error) {
	c := &Catalog{records: make(map[string]Record, len(records))}
	for _, r := range records {
		if err := c.put(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(f file) error {
	c.records = make(map[string]Record, len(f.Styles)+len(f.Stories))
	var errs []error
	for _, name := range sortedKeys(f.Styles) {
		r := f.Styles[name]
		r.Name = name
		if strings.TrimSpace(r.Story) != "" {
			errs = append(errs, fmt.Errorf("%w %q: styles take a prompt, not a story", ErrInvalid, name))
			continue
		}
		errs = append(errs, c.put(r))
	}
	for _, name := range sortedKeys(f.Stories) {
		r := f.Stories[name]
		r.Name = name
		if strings.TrimSpace(r.Prompt) != "" {
			errs = append(errs, fmt.Errorf("%w %q: stories take literal text, not a prompt", ErrInvalid, name))
			continue
		}
		errs = append(errs, c.put(r))
	}
	return errors.Join(errs...)
}

func (c *Catalog) put(r Record) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if _, dup := c.records[r.Name]; dup {
		return fmt.Errorf("%w %q: defined more than once", ErrInvalid, r.Name)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	c.records[r.Name] = r
	return nil
}

func (c *Catalog) Lookup(name string) (Record, error) {
	r, ok := c.records[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return r, nil
}

func (c *Catalog) Names() []string { return sortedKeys(c.records) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
