package objconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAML_BothSections(t *testing.T) {
	doc := []byte(`
source:
  driver: badger
  params:
    data-dir: /var/db/src
destination:
  driver: memory
`)
	specs, err := ParseYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, "badger", specs["source"].Driver)
	assert.Equal(t, "/var/db/src", specs["source"].Params["data-dir"])
	assert.Equal(t, "memory", specs["destination"].Driver)
}

func TestParseYAML_MissingSectionIsOmitted(t *testing.T) {
	doc := []byte(`
source:
  driver: memory
`)
	specs, err := ParseYAML(doc)
	require.NoError(t, err)
	_, ok := specs["destination"]
	assert.False(t, ok)
}
