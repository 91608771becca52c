package nn

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultInputs   = 6
	DefaultOutputs  = 3
	DefaultMaxNodes = 9999

	inputPrefix  = 'i'
	outputPrefix = 'o'
)

// Layout fixes the node id space of a brain: how many input and output
// nodes exist, the largest node count a graph may reach and the activation
// applied to every computed node.
type Layout struct {
	Inputs     int
	Outputs    int
	MaxNodes   int
	Activation string
}

func DefaultLayout() Layout {
	return Layout{
		Inputs:     DefaultInputs,
		Outputs:    DefaultOutputs,
		MaxNodes:   DefaultMaxNodes,
		Activation: DefaultActivation,
	}
}

func (l Layout) Validate() error {
	if l.Inputs <= 0 {
		return fmt.Errorf("layout inputs must be > 0, got %d", l.Inputs)
	}
	if l.Outputs <= 0 {
		return fmt.Errorf("layout outputs must be > 0, got %d", l.Outputs)
	}
	if l.MaxNodes < l.Inputs+l.Outputs {
		return fmt.Errorf("layout max nodes %d below io node count %d", l.MaxNodes, l.Inputs+l.Outputs)
	}
	if l.Activation != "" {
		if _, err := GetActivation(l.Activation); err != nil {
			return err
		}
	}
	return nil
}

type NodeKind uint8

const (
	KindHidden NodeKind = iota
	KindInput
	KindOutput
)

func (k NodeKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	default:
		return "hidden"
	}
}

// NodeID is a parsed genome node label. Hidden nodes are numbered within
// [0, MaxNodes]; io nodes are numbered by position.
type NodeID struct {
	Kind NodeKind
	N    int
}

func InputID(i int) NodeID  { return NodeID{Kind: KindInput, N: i} }
func OutputID(i int) NodeID { return NodeID{Kind: KindOutput, N: i} }
func HiddenID(n int) NodeID { return NodeID{Kind: KindHidden, N: n} }

func (id NodeID) String() string {
	switch id.Kind {
	case KindInput:
		return fmt.Sprintf("%c%04d", inputPrefix, id.N)
	case KindOutput:
		return fmt.Sprintf("%c%04d", outputPrefix, id.N)
	default:
		return strconv.Itoa(id.N)
	}
}

// InputIDs lists the input node labels in input order.
func (l Layout) InputIDs() []NodeID {
	ids := make([]NodeID, l.Inputs)
	for i := range ids {
		ids[i] = InputID(i)
	}
	return ids
}

func (l Layout) OutputIDs() []NodeID {
	ids := make([]NodeID, l.Outputs)
	for i := range ids {
		ids[i] = OutputID(i)
	}
	return ids
}

func (l Layout) ParseNodeID(s string) (NodeID, error) {
	if s == "" {
		return NodeID{}, fmt.Errorf("%w: empty node id", ErrGenomeParse)
	}
	switch s[0] {
	case inputPrefix, outputPrefix:
		n, err := parseIndex(s[1:])
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: node id %q", ErrGenomeParse, s)
		}
		if s[0] == inputPrefix {
			if n >= l.Inputs {
				return NodeID{}, fmt.Errorf("%w: input %q out of range [0,%d)", ErrGenomeParse, s, l.Inputs)
			}
			return InputID(n), nil
		}
		if n >= l.Outputs {
			return NodeID{}, fmt.Errorf("%w: output %q out of range [0,%d)", ErrGenomeParse, s, l.Outputs)
		}
		return OutputID(n), nil
	}
	n, err := parseIndex(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("%w: node id %q", ErrGenomeParse, s)
	}
	if n > l.MaxNodes {
		return NodeID{}, fmt.Errorf("%w: hidden id %q exceeds %d", ErrGenomeParse, s, l.MaxNodes)
	}
	return HiddenID(n), nil
}

// ParseConnectionKey splits a "<source>-<dest>" key into two node ids.
func (l Layout) ParseConnectionKey(key string) (NodeID, NodeID, error) {
	parts := strings.Split(key, "-")
	if len(parts) != 2 {
		return NodeID{}, NodeID{}, fmt.Errorf("%w: connection key %q", ErrGenomeParse, key)
	}
	from, err := l.ParseNodeID(parts[0])
	if err != nil {
		return NodeID{}, NodeID{}, err
	}
	to, err := l.ParseNodeID(parts[1])
	if err != nil {
		return NodeID{}, NodeID{}, err
	}
	return from, to, nil
}

func ConnectionKey(from, to NodeID) string {
	return from.String() + "-" + to.String()
}

func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty index")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
	}
	return strconv.Atoi(s)
}
