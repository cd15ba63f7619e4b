package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/input/sequence"
	"github.com/OpenRTM/RTM-Tutorial-sub001/output/file"
	"github.com/OpenRTM/RTM-Tutorial-sub001/processor/gain"
	"github.com/OpenRTM/RTM-Tutorial-sub001/storage/objectstore"
)

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))
	assert.Equal(t, []string{file.TypeName, gain.TypeName, objectstore.TypeName, sequence.TypeName}, registry.Types())

	err := Register(registry)
	assert.True(t, errors.IsInvalid(err), "second registration collides")
}

func TestRegister_NilRegistry(t *testing.T) {
	assert.True(t, errors.IsFatal(Register(nil)))
}
