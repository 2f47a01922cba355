// Package geographies carries the locale seed data used to put display names
// on signature breakdown codes. Constituency names are not seeded (there are
// hundreds and the remote payload already carries them); lookups for unknown
// codes fall back to the code itself.
package geographies

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/petitionwatch/backend/internal/types"
)

//go:embed seed/*.yaml
var seedFS embed.FS

var (
	loadOnce sync.Once
	loadErr  error
	names    map[types.Geography]map[string]string
)

func load() error {
	loadOnce.Do(func() {
		names = map[types.Geography]map[string]string{}
		seeds := map[types.Geography]string{
			types.GeographyCountry: "seed/countries.yaml",
			types.GeographyRegion:  "seed/regions.yaml",
		}
		for geography, path := range seeds {
			blob, err := seedFS.ReadFile(path)
			if err != nil {
				loadErr = fmt.Errorf("read %s: %w", path, err)
				return
			}
			table := map[string]string{}
			if err := yaml.Unmarshal(blob, &table); err != nil {
				loadErr = fmt.Errorf("parse %s: %w", path, err)
				return
			}
			names[geography] = table
		}
	})
	return loadErr
}

// Name resolves a locale code to its display name, falling back to the code.
func Name(geography types.Geography, code string) string {
	if err := load(); err != nil {
		return code
	}
	if table, ok := names[geography]; ok {
		if name, ok := table[code]; ok {
			return name
		}
	}
	return code
}

// Known reports whether a code appears in the seed data for its geography.
// Constituencies are never seeded, so they always report false.
func Known(geography types.Geography, code string) bool {
	if err := load(); err != nil {
		return false
	}
	table, ok := names[geography]
	if !ok {
		return false
	}
	_, ok = table[code]
	return ok
}
