package itemid_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidcrawl/vidcrawl/internal/itemid"
)

func TestValidate(t *testing.T) {
	require.NoError(t, itemid.Validate("BV1xx411c7mD"))
	require.NoError(t, itemid.Validate(strings.Repeat("a", itemid.MaxLength)))

	assert.Error(t, itemid.Validate(""))
	assert.Error(t, itemid.Validate(strings.Repeat("a", itemid.MaxLength+1)))
	assert.Error(t, itemid.Validate("has space"))
	assert.Error(t, itemid.Validate("has/slash"))
	assert.Error(t, itemid.Validate("has.dot"))
}

func TestNew(t *testing.T) {
	id, err := itemid.New("BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "BV1xx411c7mD", id.String())

	_, err = itemid.New("../etc/passwd")
	assert.Error(t, err)
}
