package sr

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant of a Node.
type Kind int

const (
	KindText Kind = iota
	KindCode
	KindPersonName
	KindNumeric
	KindDateTime
	KindDate
	KindTime
	KindUIDRef
	KindContainer
)

var kindNames = map[Kind]string{
	KindText:       "TEXT",
	KindCode:       "CODE",
	KindPersonName: "PNAME",
	KindNumeric:    "NUM",
	KindDateTime:   "DATETIME",
	KindDate:       "DATE",
	KindTime:       "TIME",
	KindUIDRef:     "UIDREF",
	KindContainer:  "CONTAINER",
}

// String returns the SR value type of the kind.
func (k Kind) String() string {
	return kindNames[k]
}

// Node is a decoded content item value.
type Node interface {
	Kind() Kind
}

// Text is the value of a TEXT content item.
type Text string

// Code is the meaning of the concept code of a CODE content item.
type Code string

// PersonName is the value of a PNAME content item.
type PersonName string

// DateTime is the raw DT value of a DATETIME content item.
type DateTime string

// Date is the raw DA value of a DATE content item.
type Date string

// Time is the raw TM value of a TIME content item.
type Time string

// UIDRef is the value of a UIDREF content item.
type UIDRef string

func (Text) Kind() Kind       { return KindText }
func (Code) Kind() Kind       { return KindCode }
func (PersonName) Kind() Kind { return KindPersonName }
func (DateTime) Kind() Kind   { return KindDateTime }
func (Date) Kind() Kind       { return KindDate }
func (Time) Kind() Kind       { return KindTime }
func (UIDRef) Kind() Kind     { return KindUIDRef }

// Numeric is the measured value of a NUM content item.
type Numeric struct {
	Value   float64
	Unit    string
	HasUnit bool
}

// NewNumeric returns a unitless numeric value.
func NewNumeric(v float64) Numeric {
	return Numeric{Value: v}
}

func (Numeric) Kind() Kind { return KindNumeric }

// Container is a CONTAINER content item and its children keyed by concept name.
type Container struct {
	Name     string
	Children map[string]Node
}

// NewContainer returns an empty container.
func NewContainer(name string) *Container {
	return &Container{Name: name, Children: make(map[string]Node)}
}

func (*Container) Kind() Kind { return KindContainer }

// Put stores a child under key. A later write for the same key wins.
func (c *Container) Put(key string, n Node) {
	if c.Children == nil {
		c.Children = make(map[string]Node)
	}
	c.Children[key] = n
}

// Get returns the child stored under key.
func (c *Container) Get(key string) (Node, bool) {
	if c == nil {
		return nil, false
	}
	n, ok := c.Children[key]
	return n, ok
}

// Child returns the nested container stored under key.
func (c *Container) Child(key string) (*Container, bool) {
	n, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	child, ok := n.(*Container)
	return child, ok
}

// Keys returns the child keys in sorted order.
func (c *Container) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Children))
	for k := range c.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Path walks nested containers and returns the node at the end of keys.
func (c *Container) Path(keys ...string) (Node, bool) {
	var node Node = c
	for _, key := range keys {
		container, ok := node.(*Container)
		if !ok {
			return nil, false
		}
		node, ok = container.Get(key)
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// NumberAt returns the number stored at the path below c. NUM items yield their
// measured value; TEXT items yield their value when it parses as a float.
func (c *Container) NumberAt(keys ...string) (float64, bool) {
	node, ok := c.Path(keys...)
	if !ok {
		return 0, false
	}
	return AsNumber(node)
}

// AsNumber converts a numeric or numeric text node to float64.
func AsNumber(n Node) (float64, bool) {
	switch v := n.(type) {
	case Numeric:
		return v.Value, true
	case Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
