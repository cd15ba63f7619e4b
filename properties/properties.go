// Package properties implements the flat dotted-key property maps carried by
// connector profiles, e.g. "dataport.interface_type" or "buffer.write.full_policy".
package properties

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// Properties maps dotted keys to string values. A nil Properties is readable.
type Properties map[string]string

// New returns an empty property map
func New() Properties {
	return Properties{}
}

// FromMap copies m, trimming whitespace around keys and values.
func FromMap(m map[string]string) Properties {
	p := make(Properties, len(m))
	for k, v := range m {
		p[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return p
}

// Get returns the value of key, or the first default when the key is absent.
func (p Properties) Get(key string, def ...string) string {
	if v, ok := p[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

// Lookup returns the value and whether key is set.
func (p Properties) Lookup(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// Has reports whether key is set or is the prefix of a set key.
func (p Properties) Has(key string) bool {
	if _, ok := p[key]; ok {
		return true
	}
	prefix := key + "."
	for k := range p {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Set assigns value to key
func (p Properties) Set(key, value string) {
	p[key] = value
}

// Delete removes key and all its children
func (p Properties) Delete(key string) {
	prefix := key + "."
	for k := range p {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(p, k)
		}
	}
}

// Node returns the children of prefix with the prefix stripped.
func (p Properties) Node(prefix string) Properties {
	node := Properties{}
	if prefix == "" {
		for k, v := range p {
			node[k] = v
		}
		return node
	}
	dotted := prefix + "."
	for k, v := range p {
		if strings.HasPrefix(k, dotted) {
			node[strings.TrimPrefix(k, dotted)] = v
		}
	}
	return node
}

// SetNode stores every key of node under prefix.
func (p Properties) SetNode(prefix string, node Properties) {
	for k, v := range node {
		if prefix == "" {
			p[k] = v
			continue
		}
		p[prefix+"."+k] = v
	}
}

// Merge copies every key of other into p, overriding existing values.
func (p Properties) Merge(other Properties) Properties {
	for k, v := range other {
		p[k] = v
	}
	return p
}

// Clone returns an independent copy
func (p Properties) Clone() Properties {
	c := make(Properties, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Keys returns the keys in sorted order
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders "key: value" lines in key order.
func (p Properties) String() string {
	var sb strings.Builder
	for _, k := range p.Keys() {
		fmt.Fprintf(&sb, "%s: %s\n", k, p[k])
	}
	return sb.String()
}

// Int returns the integer at key, or def when absent or malformed.
func (p Properties) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Float returns the float at key, or def when absent or malformed.
func (p Properties) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

// Bool returns the boolean at key using ToBool.
func (p Properties) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	return ToBool(v, def)
}

// Duration reads key as seconds ("0.5") or a Go duration ("500ms").
func (p Properties) Duration(key string, def time.Duration) time.Duration {
	v, ok := p[key]
	if !ok {
		return def
	}
	d, err := ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ParseDuration accepts fractional seconds or a Go duration string.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WrapInvalid(err, "properties", "ParseDuration", "duration parse")
	}
	return d, nil
}

// Normalize trims and lower-cases a property value
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SplitList splits a comma separated value, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ToBool interprets YES/NO, true/false, on/off and 1/0.
func ToBool(s string, def bool) bool {
	switch Normalize(s) {
	case "yes", "true", "on", "1":
		return true
	case "no", "false", "off", "0":
		return false
	default:
		return def
	}
}

// Tree expands the dotted keys into nested maps. A key that is both a leaf and
// a node keeps only its children.
func (p Properties) Tree() map[string]any {
	root := map[string]any{}
	for _, key := range p.Keys() {
		parts := strings.Split(key, ".")
		cur := root
		for i, part := range parts {
			if i == len(parts)-1 {
				if _, isNode := cur[part].(map[string]any); !isNode {
					cur[part] = p[key]
				}
				break
			}
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[part] = next
			}
			cur = next
		}
	}
	return root
}

// Decode fills out from the property tree using mapstructure tags. Values are
// weakly typed, so "8" decodes into an int field and "1.5s" into a time.Duration.
func (p Properties) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.WrapInvalid(err, "properties", "Decode", "decoder setup")
	}
	if err := dec.Decode(p.Tree()); err != nil {
		return errors.WrapInvalid(err, "properties", "Decode", "property decode")
	}
	return nil
}

// FromYAML flattens a YAML document into dotted keys.
func FromYAML(data []byte) (Properties, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(err, "properties", "FromYAML", "yaml parse")
	}
	p := Properties{}
	flatten(p, "", doc)
	return p, nil
}

func flatten(p Properties, prefix string, v any) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			flatten(p, join(k), child)
		}
	case map[any]any:
		for k, child := range t {
			flatten(p, join(fmt.Sprint(k)), child)
		}
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, fmt.Sprint(item))
		}
		p[prefix] = strings.Join(items, ",")
	case nil:
		p[prefix] = ""
	default:
		p[prefix] = fmt.Sprint(t)
	}
}
