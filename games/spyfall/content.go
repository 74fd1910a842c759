/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// RandomLocation asks the catalog to pick a location from the room's pack.
	RandomLocation = "random"

	DefaultPack = "standard"
)

//go:embed locations.yaml
var defaultCatalog []byte

// Location is a place every player except the spy is told about.
type Location struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Roles       []string `json:"roles" yaml:"roles"`
	Image       string   `json:"image,omitempty" yaml:"image"`
}

// ContentProvider resolves locations for a round.
type ContentProvider interface {
	Lookup(id string) (Location, bool)
	Resolve(pack, id string, rng Random) (Location, error)
	HasPack(pack string) bool
}

// Catalog is the static set of location packs. It is never mutated after
// it has been loaded.
type Catalog struct {
	packs map[string][]Location
	byID  map[string]Location
}

type catalogFile struct {
	Packs map[string][]Location `yaml:"packs"`
}

// DefaultCatalog returns the built-in standard and extended packs.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic("spyfall: embedded catalog is invalid: " + err.Error())
	}

	return c
}

// LoadCatalog reads a catalog from a YAML file on disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return c, nil
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	if len(f.Packs) == 0 {
		return nil, errors.New("catalog has no packs")
	}

	c := &Catalog{
		packs: make(map[string][]Location, len(f.Packs)),
		byID:  make(map[string]Location),
	}

	for pack, locations := range f.Packs {
		if len(locations) == 0 {
			return nil, fmt.Errorf("pack %q has no locations", pack)
		}

		for i := range locations {
			loc := &locations[i]
			loc.ID = strings.ToLower(strings.TrimSpace(loc.ID))

			switch {
			case loc.ID == "" || loc.ID == RandomLocation:
				return nil, fmt.Errorf("pack %q: invalid location id %q", pack, loc.ID)
			case strings.TrimSpace(loc.Name) == "":
				return nil, fmt.Errorf("pack %q: location %q has no name", pack, loc.ID)
			}

			if _, dup := c.byID[loc.ID]; dup {
				return nil, fmt.Errorf("duplicate location id %q", loc.ID)
			}

			if loc.Image == "" {
				loc.Image = "/locations/" + loc.ID + ".png"
			}

			c.byID[loc.ID] = *loc
		}

		c.packs[pack] = locations
	}

	return c, nil
}

func (c *Catalog) HasPack(pack string) bool {
	_, ok := c.packs[pack]

	return ok
}

// Packs returns the pack names in sorted order.
func (c *Catalog) Packs() []string {
	names := make([]string, 0, len(c.packs))
	for name := range c.packs {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Locations returns a copy of the locations in a pack.
func (c *Catalog) Locations(pack string) []Location {
	locations := c.packs[pack]

	out := make([]Location, len(locations))
	copy(out, locations)

	return out
}

func (c *Catalog) Lookup(id string) (Location, bool) {
	loc, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]

	return loc, ok
}

// Random picks a uniformly random location from a pack.
func (c *Catalog) Random(pack string, rng Random) (Location, error) {
	locations, ok := c.packs[pack]
	if !ok {
		return Location{}, fmt.Errorf("%w: pack %q", ErrUnknownLocation, pack)
	}

	return locations[rng.IntN(len(locations))], nil
}

// Resolve turns a location id chosen by the host into a Location from pack.
// An empty id or "random" picks one from the pack.
func (c *Catalog) Resolve(pack, id string, rng Random) (Location, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || id == RandomLocation {
		return c.Random(pack, rng)
	}

	locations, ok := c.packs[pack]
	if !ok {
		return Location{}, fmt.Errorf("%w: pack %q", ErrUnknownLocation, pack)
	}

	for _, loc := range locations {
		if loc.ID == id {
			return loc, nil
		}
	}

	return Location{}, fmt.Errorf("%w: %q is not in pack %q", ErrUnknownLocation, id, pack)
}
