package style

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Style is a remix preset.
type Style struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Icon        string   `json:"icon" yaml:"icon"`
	Prompt      string   `json:"prompt" yaml:"prompt"`
	Tags        []string `json:"tags" yaml:"tags"`
}

// BuildPrompt returns the custom prompt if set, or the preset prompt.
func (s *Style) BuildPrompt(custom string) string {
	if custom = strings.TrimSpace(custom); custom != "" {
		return custom
	}
	return "Remix the vocals into a " + s.Prompt
}

// TagString returns the custom prompt if set, or the preset tags joined by
// commas.
func (s *Style) TagString(custom string) string {
	if custom = strings.TrimSpace(custom); custom != "" {
		return custom
	}
	if len(s.Tags) == 0 {
		return fmt.Sprintf("%s, upbeat, modern", s.ID)
	}
	return strings.Join(s.Tags, ", ")
}

var defaults = []*Style{
	{
		ID:          "pop",
		Name:        "Pop",
		Description: "Catchy, upbeat, and radio-friendly",
		Icon:        "🎤",
		Prompt:      "modern pop with catchy hooks, bright production, contemporary sound",
		Tags:        []string{"pop", "upbeat", "catchy", "modern"},
	},
	{
		ID:          "rock",
		Name:        "Rock",
		Description: "Powerful guitars and driving rhythm",
		Icon:        "🎸",
		Prompt:      "rock with electric guitars, powerful drums, energetic arrangement",
		Tags:        []string{"rock", "electric guitar", "powerful", "energetic"},
	},
	{
		ID:          "jazz",
		Name:        "Jazz",
		Description: "Smooth, sophisticated, and soulful",
		Icon:        "🎷",
		Prompt:      "smooth jazz with sophisticated harmonies, soulful arrangement, swing feel",
		Tags:        []string{"jazz", "smooth", "soulful", "swing"},
	},
	{
		ID:          "electronic",
		Name:        "Electronic",
		Description: "Synths, beats, and digital textures",
		Icon:        "🎹",
		Prompt:      "electronic music with synthesizers, modern beats, digital production",
		Tags:        []string{"electronic", "synth", "edm", "modern"},
	},
	{
		ID:          "hiphop",
		Name:        "Hip Hop",
		Description: "Urban beats and rhythmic flow",
		Icon:        "🎧",
		Prompt:      "hip hop with urban beats, rhythmic flow, modern production",
		Tags:        []string{"hip hop", "rap", "urban", "beats"},
	},
	{
		ID:          "acoustic",
		Name:        "Acoustic",
		Description: "Organic, intimate, and natural",
		Icon:        "🪕",
		Prompt:      "acoustic arrangement with organic instruments, intimate feel, natural sound",
		Tags:        []string{"acoustic", "organic", "intimate", "natural"},
	},
	{
		ID:          "lofi",
		Name:        "Lo-Fi",
		Description: "Chill, nostalgic, and relaxed",
		Icon:        "🌙",
		Prompt:      "lo-fi hip hop with chill beats, nostalgic atmosphere, relaxed vibe",
		Tags:        []string{"lofi", "chill", "nostalgic", "relaxed"},
	},
	{
		ID:          "country",
		Name:        "Country",
		Description: "Storytelling with twang and heart",
		Icon:        "🤠",
		Prompt:      "country music with storytelling, acoustic guitars, heartfelt vocals",
		Tags:        []string{"country", "acoustic", "storytelling", "americana"},
	},
}

// Catalog is a read-only set of styles.
type Catalog struct {
	order  []string
	styles map[string]*Style
}

// New returns a catalog with the built-in styles.
func New() *Catalog {
	c := &Catalog{styles: map[string]*Style{}}
	for _, s := range defaults {
		c.add(s)
	}
	return c
}

// Load returns the built-in catalog extended with the styles of a YAML
// file. Styles with an existing id replace the built-in one.
func Load(path string) (*Catalog, error) {
	c := New()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("style: couldn't read %s: %w", path, err)
	}
	var file struct {
		Styles []*Style `yaml:"styles"`
	}
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("style: couldn't parse %s: %w", path, err)
	}
	for _, s := range file.Styles {
		if s.ID == "" {
			return nil, fmt.Errorf("style: missing id in %s", path)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		c.add(s)
	}
	return c, nil
}

func (c *Catalog) add(s *Style) {
	if _, ok := c.styles[s.ID]; !ok {
		c.order = append(c.order, s.ID)
	}
	c.styles[s.ID] = s
}

// Get returns the style with the given id.
func (c *Catalog) Get(id string) (*Style, bool) {
	s, ok := c.styles[id]
	return s, ok
}

// List returns the styles in catalog order.
func (c *Catalog) List() []*Style {
	out := make([]*Style, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.styles[id])
	}
	return out
}

// IDs returns the sorted style ids.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	sort.Strings(ids)
	return ids
}
