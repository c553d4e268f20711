package inspect

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userSchema = `{
  "type": "object",
  "required": ["id", "name"],
  "properties": {
    "id": {"type": "integer"},
    "name": {"type": "string"}
  }
}`

func TestValidateSchema(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		assert.NoError(t, ValidateSchema([]byte(`{"id":1,"name":"a"}`), []byte(userSchema)))
	})

	t.Run("lists every violation", func(t *testing.T) {
		err := ValidateSchema([]byte(`{"id":"x"}`), []byte(userSchema))

		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Len(t, schemaErr.Violations, 2)
		assert.Contains(t, err.Error(), "schema validation failed")
	})

	t.Run("body is not json", func(t *testing.T) {
		err := ValidateSchema([]byte(`not json`), []byte(userSchema))
		require.Error(t, err)

		var schemaErr *SchemaError
		assert.False(t, errors.As(err, &schemaErr))
	})

	t.Run("invalid schema", func(t *testing.T) {
		err := ValidateSchema([]byte(`{}`), []byte(`{"type": 12}`))
		assert.ErrorContains(t, err, "invalid schema")
	})
}

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.schema.json")
	require.NoError(t, os.WriteFile(path, []byte(userSchema), 0644))

	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.NoError(t, s.Validate([]byte(`{"id":2,"name":"b"}`)))
	assert.Error(t, s.Validate([]byte(`{"id":2}`)))

	_, err = LoadSchema(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
