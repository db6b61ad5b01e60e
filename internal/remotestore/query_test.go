package remotestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilters_EmptyIsValid(t *testing.T) {
	err := ValidateFilters(Query{Collection: "rooms"})
	assert.NoError(t, err)
}

func TestValidateFilters_ValidSingleFilter(t *testing.T) {
	err := ValidateFilters(Query{
		Collection: "rooms",
		Filters: []Filter{
			{Field: "status", Op: OpEq, Value: "active"},
		},
	})
	assert.NoError(t, err)
}

func TestValidateFilters_ValidMultipleFiltersAndNestedField(t *testing.T) {
	err := ValidateFilters(Query{
		Collection: "rooms",
		Filters: []Filter{
			{Field: "owner.id", Op: OpEq, Value: int64(7)},
			{Field: "tags", Op: OpContains, Value: "urgent"},
			{Field: "score", Op: OpGte, Value: 3.5},
		},
	})
	assert.NoError(t, err)
}

func TestValidateFilters_RejectsUnsupportedOperator(t *testing.T) {
	err := ValidateFilters(Query{
		Filters: []Filter{{Field: "status", Op: FilterOp("~="), Value: "active"}},
	})
	assert.Error(t, err)
}

func TestValidateFilters_RejectsEmptyField(t *testing.T) {
	err := ValidateFilters(Query{
		Filters: []Filter{{Field: "", Op: OpEq, Value: "active"}},
	})
	assert.Error(t, err)
}

func TestValidateFilters_RejectsUnsupportedValueType(t *testing.T) {
	err := ValidateFilters(Query{
		Filters: []Filter{{Field: "status", Op: OpEq, Value: struct{}{}}},
	})
	assert.Error(t, err)
}

func TestFilterToExpression_InOperatorWithList(t *testing.T) {
	expr, err := filterToExpression(Filter{
		Field: "status",
		Op:    OpIn,
		Value: []interface{}{"active", "pending"},
	})
	assert.NoError(t, err)
	assert.Contains(t, expr, "in")
}
