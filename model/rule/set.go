package rule

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Set is a declarative rule list.
type Set struct {
	Rules []*Rule `json:"rules" yaml:"rules"`
}

// Validate validates every rule and requires unique ids.
func (s *Set) Validate() error {
	ids := make(map[string]bool, len(s.Rules))
	for i, candidate := range s.Rules {
		if candidate == nil {
			return fmt.Errorf("rule[%d] was nil", i)
		}
		if err := candidate.Validate(); err != nil {
			return err
		}
		if ids[candidate.ID] {
			return fmt.Errorf("duplicate rule id: %v", candidate.ID)
		}
		ids[candidate.ID] = true
	}
	return nil
}

// Parse decodes and validates a YAML rule set; a bare list of rules is accepted too.
func Parse(data []byte) (*Set, error) {
	ret := &Set{}
	node := yaml.Node{}
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(node.Content) == 0 {
		return ret, nil
	}
	root := node.Content[0]
	var err error
	if root.Kind == yaml.SequenceNode {
		err = root.Decode(&ret.Rules)
	} else {
		err = root.Decode(ret)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	if err = ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Load reads a rule set from URL.
func Load(ctx context.Context, fs afs.Service, URL string) (*Set, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules %v: %w", URL, err)
	}
	return Parse(data)
}
