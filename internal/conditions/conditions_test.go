package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vantagecrm/hookd/internal/models"
)

func payload() map[string]interface{} {
	return map[string]interface{}{
		"id":     "opp_123",
		"stage":  "negotiation",
		"amount": float64(15000),
		"owner": map[string]interface{}{
			"id":   "usr_7",
			"name": "Dana",
		},
	}
}

func TestEvaluate_EmptyConditionsAlwaysTrigger(t *testing.T) {
	assert.True(t, Evaluate(nil, payload()))
	assert.True(t, Evaluate([]models.Condition{}, payload()))
}

func TestEvaluate_AllMustPass(t *testing.T) {
	conds := []models.Condition{
		{Field: "stage", Operator: "equals", Value: "negotiation"},
		{Field: "amount", Operator: "greater_than", Value: 10000},
	}
	assert.True(t, Evaluate(conds, payload()))

	conds = append(conds, models.Condition{Field: "stage", Operator: "equals", Value: "won"})
	assert.False(t, Evaluate(conds, payload()))
}

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equals string", models.Condition{Field: "stage", Operator: "equals", Value: "negotiation"}, true},
		{"equals mismatch", models.Condition{Field: "stage", Operator: "equals", Value: "closed"}, false},
		{"equals numeric cross-type", models.Condition{Field: "amount", Operator: "equals", Value: 15000}, true},
		{"not_equals", models.Condition{Field: "stage", Operator: "not_equals", Value: "closed"}, true},
		{"contains", models.Condition{Field: "stage", Operator: "contains", Value: "negoti"}, true},
		{"contains miss", models.Condition{Field: "stage", Operator: "contains", Value: "won"}, false},
		{"greater_than", models.Condition{Field: "amount", Operator: "greater_than", Value: 14999}, true},
		{"greater_than equal is false", models.Condition{Field: "amount", Operator: "greater_than", Value: float64(15000)}, false},
		{"less_than", models.Condition{Field: "amount", Operator: "less_than", Value: 20000}, true},
		{"numeric string coerces", models.Condition{Field: "amount", Operator: "greater_than", Value: "10000"}, true},
		{"non-numeric field is false", models.Condition{Field: "stage", Operator: "greater_than", Value: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate([]models.Condition{tt.cond}, payload()))
		})
	}
}

func TestEvaluate_UnknownOperatorIsFalse(t *testing.T) {
	conds := []models.Condition{{Field: "stage", Operator: "matches", Value: "neg.*"}}
	assert.False(t, Evaluate(conds, payload()))
}

func TestEvaluate_MissingFieldOnlyMatchesNil(t *testing.T) {
	conds := []models.Condition{{Field: "nonexistent", Operator: "equals", Value: "x"}}
	assert.False(t, Evaluate(conds, payload()))

	conds = []models.Condition{{Field: "nonexistent", Operator: "greater_than", Value: 1}}
	assert.False(t, Evaluate(conds, payload()))
}

func TestExtract_DotPaths(t *testing.T) {
	p := payload()

	assert.Equal(t, "opp_123", Extract("id", p))
	assert.Equal(t, "usr_7", Extract("owner.id", p))
	assert.Nil(t, Extract("owner.missing", p))
	assert.Nil(t, Extract("owner.id.deeper", p))
	assert.Nil(t, Extract("missing.path", p))
}

func TestValidOperator(t *testing.T) {
	for _, op := range []string{"equals", "not_equals", "contains", "greater_than", "less_than"} {
		assert.True(t, ValidOperator(op), op)
	}
	assert.False(t, ValidOperator("regex"))
	assert.False(t, ValidOperator(""))
}
