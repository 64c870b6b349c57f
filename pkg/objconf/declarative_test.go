package objconf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkdb/objcopy/pkg/objerr"
)

func TestParseDeclarative_TwoSections(t *testing.T) {
	doc := []byte(`
<badger source>
  data-dir /var/db/src
</badger>
<badger destination>
  data-dir /var/db/dst
</badger>
`)
	specs, err := ParseDeclarative(doc)
	require.NoError(t, err)
	require.Contains(t, specs, "source")
	require.Contains(t, specs, "destination")
	assert.Equal(t, "badger", specs["source"].Driver)
	assert.Equal(t, "/var/db/src", specs["source"].Params["data-dir"])
	assert.Equal(t, "/var/db/dst", specs["destination"].Params["data-dir"])
}

func TestParseDeclarative_SelfClosingSection(t *testing.T) {
	doc := []byte(`<memory source/>`)
	specs, err := ParseDeclarative(doc)
	require.NoError(t, err)
	assert.Equal(t, "memory", specs["source"].Driver)
	assert.Empty(t, specs["source"].Params)
}

func TestParseDeclarative_DuplicateSideIsAnError(t *testing.T) {
	doc := []byte(`
<badger source>
  data-dir /a
</badger>
<memory source/>
`)
	_, err := ParseDeclarative(doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, objerr.ErrDuplicateSpecification))
}

func TestParseDeclarative_UnclosedTagIsAnError(t *testing.T) {
	doc := []byte(`
<badger source>
  data-dir /a
`)
	_, err := ParseDeclarative(doc)
	assert.Error(t, err)
}

func TestParseDeclarative_MismatchedClosingTagIsAnError(t *testing.T) {
	doc := []byte(`
<badger source>
  data-dir /a
</memory>
`)
	_, err := ParseDeclarative(doc)
	assert.Error(t, err)
}
