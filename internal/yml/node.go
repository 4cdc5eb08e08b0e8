package yml

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

type (
	Node yaml.Node
)

// Pairs iterates mapping node key/value pairs in document order.
func (n *Node) Pairs(callback func(key string, node *Node) error) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("expected mapping node, but had: %v", n.Tag)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := callback(n.Content[i].Value, (*Node)(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// Interface returns a plain Go value for the node: scalars are typed by tag,
// mappings become map[string]interface{} and sequences []interface{}.
func (n *Node) Interface() interface{} {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!bool":
			v, _ := strconv.ParseBool(n.Value)
			return v
		case "!!null":
			return nil
		case "!!float":
			v, _ := strconv.ParseFloat(n.Value, 64)
			return v
		case "!!int":
			v, err := strconv.Atoi(n.Value)
			if err != nil {
				return n.Value
			}
			return v
		default:
			return n.Value
		}
	case yaml.MappingNode:
		aMap := make(map[string]interface{})
		for i := 0; i+1 < len(n.Content); i += 2 {
			aMap[n.Content[i].Value] = (*Node)(n.Content[i+1]).Interface()
		}
		return aMap
	case yaml.SequenceNode:
		aSlice := make([]interface{}, 0, len(n.Content))
		for _, item := range n.Content {
			aSlice = append(aSlice, (*Node)(item).Interface())
		}
		return aSlice
	case yaml.AliasNode:
		if n.Alias != nil {
			return (*Node)(n.Alias).Interface()
		}
	}
	return nil
}

// Put appends a key/value pair to a mapping node.
func (n *Node) Put(key string, value interface{}) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("not a map node")
	}
	valueNode, err := ValueNode(value)
	if err != nil {
		return err
	}
	n.Content = append(n.Content, scalar(key), valueNode)
	return nil
}

// ValueNode encodes value as a yaml node.
func ValueNode(value interface{}) (*yaml.Node, error) {
	if value == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}, nil
	}
	node := &yaml.Node{}
	if err := node.Encode(value); err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", value, err)
	}
	return node, nil
}

// NewMap returns an empty mapping node.
func NewMap() *Node {
	return &Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}
