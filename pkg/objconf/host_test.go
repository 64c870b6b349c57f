package objconf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkdb/objcopy/pkg/objerr"
)

func TestExtractZodbDB_StripsHostKeysAndHoistsDirectives(t *testing.T) {
	doc := []byte(`
%import my.package
%define BASE /var/db

<zodb_db main>
  cache-size 10000
  mount-point /
  <badger>
    data-dir /var/db/main
    connection-class my.Class
  </badger>
</zodb_db>
`)
	spec, directives, err := ExtractZodbDB(doc, "main")
	require.NoError(t, err)
	assert.Equal(t, "badger", spec.Driver)
	assert.Equal(t, "/var/db/main", spec.Params["data-dir"])
	assert.NotContains(t, spec.Params, "connection-class")
	assert.Equal(t, []string{"%import my.package", "%define BASE /var/db"}, directives)
}

func TestExtractZodbDB_UnknownNameIsSectionNotFound(t *testing.T) {
	doc := []byte(`
<zodb_db main>
  <badger>
    data-dir /var/db/main
  </badger>
</zodb_db>
`)
	_, _, err := ExtractZodbDB(doc, "other")
	require.Error(t, err)
	assert.True(t, errors.Is(err, objerr.ErrSectionNotFound))
}

func TestExtractZodbDB_WrapperInsideWrapperSpansToLastMatchingClose(t *testing.T) {
	doc := []byte(`
<zodb_db main>
  <blobstorage>
    blob-dir /var/db/blobs
    <badger>
      data-dir /var/db/main
    </badger>
  </blobstorage>
</zodb_db>
`)
	spec, _, err := ExtractZodbDB(doc, "main")
	require.NoError(t, err)
	assert.Equal(t, "blobstorage", spec.Driver)
	assert.Equal(t, "/var/db/blobs", spec.Params["blob-dir"])
}
