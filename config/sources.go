package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/prdeck/prdeck/internal/inbox"
)

// LoadSources reads a source bootstrap file. The file is JWCC (JSON with
// comments and trailing commas) so it can be hand-edited and annotated.
// A missing file is not an error; it just means nothing to seed.
func LoadSources(path string) ([]inbox.Source, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}

	var doc struct {
		Sources []inbox.Source `json:"sources"`
	}
	if err := json.Unmarshal(standardized, &doc); err != nil {
		return nil, fmt.Errorf("decode sources file %s: %w", path, err)
	}

	for i := range doc.Sources {
		src := doc.Sources[i]
		if src.Name == "" {
			return nil, fmt.Errorf("sources file %s: entry %d is missing a name", path, i)
		}
		switch src.Kind {
		case inbox.SourceKindQuery:
			if src.Query == "" {
				return nil, fmt.Errorf("sources file %s: source %q needs a query", path, src.Name)
			}
		case inbox.SourceKindChannel:
			if src.ChannelName == "" {
				return nil, fmt.Errorf("sources file %s: source %q needs a channelName", path, src.Name)
			}
		default:
			return nil, fmt.Errorf("sources file %s: source %q has unknown kind %q", path, src.Name, src.Kind)
		}
	}
	return doc.Sources, nil
}
