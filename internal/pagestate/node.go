// Package pagestate models the application state a client-rendered page
// embeds in its markup, as an ordered recursive value.
package pagestate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MaxDepth bounds both parsing and traversal. Containers nested deeper parse
// as null.
const MaxDepth = 64

type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "null"
	}
}

// Field is one key of an object node. Fields keep document order.
type Field struct {
	Key   string
	Value Node
}

// Node is a JSON value. The zero Node is null.
type Node struct {
	kind   Kind
	str    string
	num    json.Number
	b      bool
	items  []Node
	fields []Field
}

func StringNode(s string) Node { return Node{kind: String, str: s} }

func ArrayNode(items ...Node) Node { return Node{kind: Array, items: items} }

func ObjectNode(fields ...Field) Node { return Node{kind: Object, fields: fields} }

func (n Node) Kind() Kind   { return n.kind }
func (n Node) IsNull() bool { return n.kind == Null }

// Str returns the string value and whether the node is a string.
func (n Node) Str() (string, bool) {
	if n.kind != String {
		return "", false
	}
	return n.str, true
}

// Get returns the value for key, or null when n is not an object or the key
// is absent. With duplicate keys the last one wins, as in encoding/json.
func (n Node) Get(key string) Node {
	for i := len(n.fields) - 1; i >= 0; i-- {
		if n.fields[i].Key == key {
			return n.fields[i].Value
		}
	}
	return Node{}
}

// Path follows a chain of object keys.
func (n Node) Path(keys ...string) Node {
	cur := n
	for _, k := range keys {
		cur = cur.Get(k)
		if cur.IsNull() {
			return cur
		}
	}
	return cur
}

// Index returns the i-th array element. Negative indexes count from the end.
func (n Node) Index(i int) Node {
	if i < 0 {
		i += len(n.items)
	}
	if i < 0 || i >= len(n.items) {
		return Node{}
	}
	return n.items[i]
}

func (n Node) Len() int {
	switch n.kind {
	case Array:
		return len(n.items)
	case Object:
		return len(n.fields)
	}
	return 0
}

func (n Node) Items() []Node   { return n.items }
func (n Node) Fields() []Field { return n.fields }

// Parse decodes a JSON document into a Node, preserving object key order.
// Empty input and the literal null both yield a null node.
func Parse(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Node{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := parseValue(dec, 0)
	if err != nil {
		return Node{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Node{}, fmt.Errorf("trailing data after structured state")
	}
	return n, nil
}

func parseValue(dec *json.Decoder, depth int) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}
	return parseToken(dec, tok, depth)
}

func parseToken(dec *json.Decoder, tok json.Token, depth int) (Node, error) {
	switch v := tok.(type) {
	case nil:
		return Node{}, nil
	case bool:
		return Node{kind: Bool, b: v}, nil
	case json.Number:
		return Node{kind: Number, num: v}, nil
	case string:
		return StringNode(v), nil
	case json.Delim:
		if depth >= MaxDepth {
			// Only this subtree is dropped; its siblings still parse.
			if err := skipContainer(dec); err != nil {
				return Node{}, err
			}
			return Node{}, nil
		}
		switch v {
		case '[':
			var items []Node
			for dec.More() {
				item, err := parseValue(dec, depth+1)
				if err != nil {
					return Node{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Node{kind: Array, items: items}, nil
		case '{':
			var fields []Field
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Node{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := parseValue(dec, depth+1)
				if err != nil {
					return Node{}, err
				}
				fields = append(fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Node{kind: Object, fields: fields}, nil
		}
	}
	return Node{}, fmt.Errorf("unexpected token %v", tok)
}

// skipContainer consumes tokens up to the delimiter closing the container
// whose opening delimiter was just read.
func skipContainer(dec *json.Decoder) error {
	for open := 1; open > 0; {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '[', '{':
				open++
			default:
				open--
			}
		}
	}
	return nil
}

// FindStrings walks root depth-first and collects the string values of every
// object entry named key whose length in runes is greater than minRunes.
// Results are deduplicated in first-seen order. Subtrees deeper than
// MaxDepth are skipped; the walk never fails.
func FindStrings(root Node, key string, minRunes int) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)

	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		if depth > MaxDepth {
			return
		}
		switch n.kind {
		case Object:
			for _, f := range n.fields {
				if f.Key == key {
					if s, ok := f.Value.Str(); ok && len([]rune(s)) > minRunes {
						if _, dup := seen[s]; !dup {
							seen[s] = struct{}{}
							out = append(out, s)
						}
					}
				}
				walk(f.Value, depth+1)
			}
		case Array:
			for _, item := range n.items {
				walk(item, depth+1)
			}
		}
	}
	walk(root, 0)

	return out
}

// Text renders a scalar node as text. Containers and null yield "".
func (n Node) Text() string {
	switch n.kind {
	case String:
		return n.str
	case Number:
		return n.num.String()
	case Bool:
		if n.b {
			return "true"
		}
		return "false"
	}
	return ""
}

// TrimmedStr is Str with surrounding whitespace removed.
func (n Node) TrimmedStr() string {
	s, _ := n.Str()
	return strings.TrimSpace(s)
}
