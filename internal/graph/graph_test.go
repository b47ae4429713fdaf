package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kioku-ai/kioku/internal/model"
)

func TestRelation_Valid(t *testing.T) {
	assert.True(t, model.RelationCauses.Valid())
	assert.True(t, model.RelationContradicts.Valid())
	assert.False(t, model.Relation("orbits").Valid())
}
