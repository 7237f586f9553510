package job

import (
	"fmt"
	"strings"
)

// Category is the top level of a job key (e.g. "system", "health").
type Category struct {
	Name string
}

// Type is the second level of a job key. It always belongs to a Category.
type Type struct {
	Category Category
	Name     string
}

// Key uniquely identifies a job. It is comparable and safe to use as a map key.
type Key struct {
	Category string
	Type     string
	ID       string
}

func CategoryOf(name string) Category { return Category{Name: name} }

func (c Category) Type(name string) Type { return Type{Category: c, Name: name} }

func (t Type) Key(id string) Key {
	return Key{Category: t.Category.Name, Type: t.Name, ID: id}
}

// JobType returns the key's type (category + type name).
func (k Key) JobType() Type {
	return CategoryOf(k.Category).Type(k.Type)
}

func (k Key) IsZero() bool { return k == Key{} }

// SameType reports whether both keys share category and type.
func (k Key) SameType(o Key) bool {
	return k.Category == o.Category && k.Type == o.Type
}

func (k Key) String() string {
	return k.Category + "/" + k.Type + "/" + k.ID
}

// Less orders keys by category, type, then id.
func (k Key) Less(o Key) bool {
	if k.Category != o.Category {
		return k.Category < o.Category
	}
	if k.Type != o.Type {
		return k.Type < o.Type
	}
	return k.ID < o.ID
}

// ParseKey parses the "category/type/id" form produced by Key.String.
// The id part may itself contain slashes.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("invalid job key %q (want category/type/id)", s)
	}
	return Key{Category: parts[0], Type: parts[1], ID: parts[2]}, nil
}
