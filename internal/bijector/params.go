package bijector

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/born-ml/flow/internal/tensor"
)

// Params is the parameter tree of an initialized bijector.
//
// Leaves are named float64 arrays; composites such as Chain keep one child
// per component, in construction order. Params is created by Init and owned
// by the caller afterwards. Transform functions only read it, so one value
// may be shared by any number of concurrent calls.
type Params struct {
	Arrays   map[string]*tensor.Array `json:"arrays,omitempty"`
	Children []*Params                `json:"children,omitempty"`
}

// NewParams returns an empty parameter tree.
func NewParams() *Params {
	return &Params{}
}

// Array returns the named leaf array.
func (p *Params) Array(name string) (*tensor.Array, bool) {
	if p == nil || p.Arrays == nil {
		return nil, false
	}
	a, ok := p.Arrays[name]
	return a, ok
}

// NumElements returns the total number of scalars in the tree.
func (p *Params) NumElements() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, a := range p.Arrays {
		n += a.NumElements()
	}
	for _, c := range p.Children {
		n += c.NumElements()
	}
	return n
}

// Clone returns a deep copy of the tree.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	out := &Params{}
	if p.Arrays != nil {
		out.Arrays = make(map[string]*tensor.Array, len(p.Arrays))
		for name, a := range p.Arrays {
			out.Arrays[name] = a.Clone()
		}
	}
	if p.Children != nil {
		out.Children = make([]*Params, len(p.Children))
		for i, c := range p.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Equal reports whether two trees have the same structure and bit-identical arrays.
func (p *Params) Equal(other *Params) bool {
	if p == nil || other == nil {
		return p.NumElements() == 0 && other.NumElements() == 0 && p.Skeleton() == other.Skeleton()
	}
	if len(p.Arrays) != len(other.Arrays) || len(p.Children) != len(other.Children) {
		return false
	}
	for name, a := range p.Arrays {
		b, ok := other.Arrays[name]
		if !ok || !a.Equal(b) {
			return false
		}
	}
	for i := range p.Children {
		if !p.Children[i].Equal(other.Children[i]) {
			return false
		}
	}
	return true
}

// Skeleton encodes the child structure of the tree, ignoring arrays.
// A leaf is "()", a chain of two leaves is "(()())".
func (p *Params) Skeleton() string {
	var sb strings.Builder
	p.writeSkeleton(&sb)
	return sb.String()
}

func (p *Params) writeSkeleton(sb *strings.Builder) {
	sb.WriteByte('(')
	if p != nil {
		for _, c := range p.Children {
			c.writeSkeleton(sb)
		}
	}
	sb.WriteByte(')')
}

// StateDict flattens the tree into a map keyed by path.
//
// Keys are the child indices followed by the array name, joined by dots:
// "perm" at the root, "2.dense_0.weight" in the third child.
// The arrays are shared with the tree, not copied.
func (p *Params) StateDict() map[string]*tensor.Array {
	stateDict := make(map[string]*tensor.Array)
	p.collect("", stateDict)
	return stateDict
}

func (p *Params) collect(prefix string, stateDict map[string]*tensor.Array) {
	if p == nil {
		return
	}
	for name, a := range p.Arrays {
		stateDict[prefix+name] = a
	}
	for i, c := range p.Children {
		c.collect(prefix+strconv.Itoa(i)+".", stateDict)
	}
}

// Names returns the sorted state dict keys of the tree.
func (p *Params) Names() []string {
	return slices.Sorted(maps.Keys(p.StateDict()))
}

// ParamsFromStateDict rebuilds a tree from a flattened state dict and the
// skeleton of the original tree.
func ParamsFromStateDict(stateDict map[string]*tensor.Array, skeleton string) (*Params, error) {
	root, err := parseSkeleton(skeleton)
	if err != nil {
		return nil, err
	}

	for key, a := range stateDict {
		node := root
		segments := strings.Split(key, ".")
		i := 0
		for ; i < len(segments)-1; i++ {
			idx, err := strconv.Atoi(segments[i])
			if err != nil {
				break
			}
			if idx < 0 || idx >= len(node.Children) {
				return nil, fmt.Errorf("key %q: child %d out of range [0, %d)", key, idx, len(node.Children))
			}
			node = node.Children[idx]
		}
		name := strings.Join(segments[i:], ".")
		if node.Arrays == nil {
			node.Arrays = make(map[string]*tensor.Array)
		}
		node.Arrays[name] = a
	}
	return root, nil
}

// Limits on skeletons read from untrusted metadata.
const (
	MaxSkeletonDepth = 1024
	MaxSkeletonNodes = 1 << 20
)

// parseSkeleton decodes a skeleton written by Params.Skeleton.
func parseSkeleton(s string) (*Params, error) {
	if !strings.HasPrefix(s, "(") {
		return nil, fmt.Errorf("invalid params skeleton: must start with '('")
	}

	var root *Params
	var stack []*Params
	nodes := 0
	for i := 0; i < len(s); i++ {
		if root != nil && len(stack) == 0 {
			return nil, fmt.Errorf("trailing data in params skeleton at offset %d", i)
		}
		switch s[i] {
		case '(':
			nodes++
			if nodes > MaxSkeletonNodes {
				return nil, fmt.Errorf("params skeleton has more than %d nodes", MaxSkeletonNodes)
			}
			if len(stack) >= MaxSkeletonDepth {
				return nil, fmt.Errorf("params skeleton nested deeper than %d", MaxSkeletonDepth)
			}
			node := &Params{}
			if len(stack) == 0 {
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case ')':
			stack = stack[:len(stack)-1]
		default:
			return nil, fmt.Errorf("invalid character %q in params skeleton at offset %d", s[i], i)
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unterminated params skeleton")
	}
	return root, nil
}
