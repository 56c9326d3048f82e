// Package catalog defines the target field catalogue for import destinations.
// The catalogue is data, not code: field definitions, header aliases, keyword
// sets, and sample-shape rules ship as TOML so new sources can be accommodated
// without code changes.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// FieldType represents the expected data type for a destination field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldNumeric
	FieldBool
	FieldDate
)

// UnmarshalText decodes the TOML string form ("text", "enum", ...).
func (t *FieldType) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "text", "":
		*t = FieldText
	case "enum":
		*t = FieldEnum
	case "numeric":
		*t = FieldNumeric
	case "bool", "boolean":
		*t = FieldBool
	case "date":
		*t = FieldDate
	default:
		return fmt.Errorf("unknown field type %q", string(b))
	}
	return nil
}

func (t FieldType) String() string {
	switch t {
	case FieldEnum:
		return "enum"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	case FieldDate:
		return "date"
	default:
		return "text"
	}
}

// Field describes a single writable destination column.
type Field struct {
	Name         string    `toml:"name"`
	Label        string    `toml:"label"`
	Type         FieldType `toml:"type"`
	Required     bool      `toml:"required"`
	EnumValues   []string  `toml:"enum_values"`
	MaxLength    int       `toml:"max_length"`
	DefaultValue string    `toml:"default_value"`

	// Matching rules. Aliases are exact (case-insensitive) header matches,
	// Keywords feed token-overlap scoring, Pattern names a sample-shape
	// validator used for content-based confidence boosts.
	Aliases  []string `toml:"aliases"`
	Keywords []string `toml:"keywords"`
	Pattern  string   `toml:"pattern"`

	// Normalizer names a fixed free-text-to-canonical lookup applied during
	// row transformation.
	Normalizer string `toml:"normalizer"`
}

// Catalog is a versioned set of destination fields for one entity type.
type Catalog struct {
	Version string  `toml:"version"`
	Entity  string  `toml:"entity"`
	Fields  []Field `toml:"fields"`

	byName  map[string]Field
	byAlias map[string]string
}

// Parse decodes and validates a TOML catalogue.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalogue: %w", err)
	}
	c.index()
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.Entity == "" {
		return fmt.Errorf("entity is required")
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("no fields defined")
	}

	seen := make(map[string]bool, len(c.Fields))
	aliases := make(map[string]string)
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		if f.Type == FieldEnum && len(f.EnumValues) == 0 {
			return fmt.Errorf("enum field %q has no enum_values", f.Name)
		}
		if f.MaxLength < 0 {
			return fmt.Errorf("field %q has negative max_length", f.Name)
		}
		for _, a := range f.Aliases {
			key := strings.ToLower(strings.TrimSpace(a))
			if prev, dup := aliases[key]; dup && prev != f.Name {
				return fmt.Errorf("alias %q claimed by both %q and %q", a, prev, f.Name)
			}
			aliases[key] = f.Name
		}
	}
	return nil
}

func (c *Catalog) index() {
	c.byName = make(map[string]Field, len(c.Fields))
	c.byAlias = make(map[string]string)
	for _, f := range c.Fields {
		c.byName[f.Name] = f
		// A field's own name always works as an alias.
		c.byAlias[strings.ToLower(f.Name)] = f.Name
		c.byAlias[strings.ToLower(strings.ReplaceAll(f.Name, "_", " "))] = f.Name
		for _, a := range f.Aliases {
			c.byAlias[strings.ToLower(strings.TrimSpace(a))] = f.Name
		}
	}
}

// Get returns a field definition by name.
func (c *Catalog) Get(name string) (Field, bool) {
	f, ok := c.byName[name]
	return f, ok
}

// FieldByAlias resolves a cleaned, lowercased header against the alias
// dictionary. Returns the target field name and whether a match exists.
func (c *Catalog) FieldByAlias(header string) (string, bool) {
	name, ok := c.byAlias[strings.ToLower(strings.TrimSpace(header))]
	return name, ok
}

// Required returns the fields that must receive a confirmed mapping before
// any rows are written.
func (c *Catalog) Required() []Field {
	var out []Field
	for _, f := range c.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// Names returns all field names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// SortedNames returns all field names sorted alphabetically.
func (c *Catalog) SortedNames() []string {
	names := c.Names()
	sort.Strings(names)
	return names
}

//go:embed organization.toml
var organizationTOML []byte

var (
	orgOnce sync.Once
	orgCat  *Catalog
)

// Organization returns the built-in organization catalogue.
func Organization() *Catalog {
	orgOnce.Do(func() {
		c, err := Parse(organizationTOML)
		if err != nil {
			panic(fmt.Sprintf("embedded organization catalogue: %v", err))
		}
		orgCat = c
	})
	return orgCat
}
