package properties

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties_GetAndHas(t *testing.T) {
	p := FromMap(map[string]string{
		" dataport.interface_type ": " shared_memory ",
		"serializer.cdr.endian":     "little",
	})

	assert.Equal(t, "shared_memory", p.Get("dataport.interface_type"))
	assert.Equal(t, "fallback", p.Get("missing", "fallback"))
	assert.Equal(t, "", p.Get("missing"))

	assert.True(t, p.Has("serializer"))
	assert.True(t, p.Has("serializer.cdr"))
	assert.True(t, p.Has("serializer.cdr.endian"))
	assert.False(t, p.Has("serial"))
	assert.False(t, p.Has("buffer"))
}

func TestProperties_NodeAndSetNode(t *testing.T) {
	p := Properties{
		"buffer.length":            "16",
		"buffer.write.full_policy": "block",
		"dataport.data_type":       "IDL:RTC/TimedLong:1.0",
	}

	node := p.Node("buffer")
	assert.Equal(t, Properties{"length": "16", "write.full_policy": "block"}, node)
	assert.Equal(t, Properties{"full_policy": "block"}, node.Node("write"))

	out := New()
	out.SetNode("inport.buffer", node)
	assert.Equal(t, "16", out.Get("inport.buffer.length"))
}

func TestProperties_MergeCloneDelete(t *testing.T) {
	base := Properties{"a": "1", "b.c": "2", "b.d": "3"}
	clone := base.Clone()
	clone.Merge(Properties{"a": "override"})

	assert.Equal(t, "1", base.Get("a"))
	assert.Equal(t, "override", clone.Get("a"))

	clone.Delete("b")
	assert.False(t, clone.Has("b"))
	assert.Equal(t, []string{"a"}, clone.Keys())
}

func TestProperties_TypedAccessors(t *testing.T) {
	p := Properties{
		"length":         "32",
		"bad":            "x",
		"rate":           "2.5",
		"sync_readwrite": "YES",
		"timeout":        "0.25",
		"go_timeout":     "150ms",
	}

	assert.Equal(t, 32, p.Int("length", 8))
	assert.Equal(t, 8, p.Int("bad", 8))
	assert.Equal(t, 2.5, p.Float("rate", 1))
	assert.True(t, p.Bool("sync_readwrite", false))
	assert.Equal(t, 250*time.Millisecond, p.Duration("timeout", 0))
	assert.Equal(t, 150*time.Millisecond, p.Duration("go_timeout", 0))
	assert.Equal(t, time.Second, p.Duration("bad", time.Second))
}

func TestSplitListAndToBool(t *testing.T) {
	assert.Equal(t, []string{"big", "little"}, SplitList(" big , little,,"))
	assert.Nil(t, SplitList(""))
	assert.False(t, ToBool("off", true))
	assert.True(t, ToBool("maybe", true))
	assert.Equal(t, "little", Normalize("  LITTLE "))
}

func TestProperties_Decode(t *testing.T) {
	type writeOpts struct {
		FullPolicy string        `mapstructure:"full_policy"`
		Timeout    time.Duration `mapstructure:"timeout"`
	}
	type bufferOpts struct {
		Length int       `mapstructure:"length"`
		Write  writeOpts `mapstructure:"write"`
	}

	p := Properties{
		"length":            "12",
		"write.full_policy": "do_nothing",
		"write.timeout":     "2s",
	}

	var opts bufferOpts
	require.NoError(t, p.Decode(&opts))
	assert.Equal(t, 12, opts.Length)
	assert.Equal(t, "do_nothing", opts.Write.FullPolicy)
	assert.Equal(t, 2*time.Second, opts.Write.Timeout)
}

func TestProperties_TreeChildrenWin(t *testing.T) {
	p := Properties{"buffer": "ring", "buffer.length": "4"}
	tree := p.Tree()

	node, ok := tree["buffer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "4", node["length"])
}

func TestFromYAML(t *testing.T) {
	doc := []byte(`
dataport:
  interface_type: shared_memory
  dataflow_type: push
shem_default_size: 1K
serializer:
  cdr:
    endian: [big, little]
`)

	p, err := FromYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, "shared_memory", p.Get("dataport.interface_type"))
	assert.Equal(t, "push", p.Get("dataport.dataflow_type"))
	assert.Equal(t, "1K", p.Get("shem_default_size"))
	assert.Equal(t, "big,little", p.Get("serializer.cdr.endian"))

	_, err = FromYAML([]byte("a: [unterminated"))
	assert.Error(t, err)
}

func TestProperties_String(t *testing.T) {
	p := Properties{"b": "2", "a": "1"}
	assert.Equal(t, "a: 1\nb: 2\n", p.String())
}
