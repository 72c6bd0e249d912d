package sink

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAML writes the sheet as a sequence of mappings, keeping column order.
type YAML struct {
	Path string
}

func (y *YAML) Write(_ context.Context, s Sheet) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range s.Rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for j, col := range s.Columns {
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: col},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: cell(row, j)},
			)
		}
		doc.Content = append(doc.Content, m)
	}

	f, err := create(y.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return f.Close()
}

func (y *YAML) Close() error { return nil }
