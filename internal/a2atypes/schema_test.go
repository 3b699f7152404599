package a2atypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"amount": {"type": "number"},
		"currency": {"type": "string"}
	},
	"required": ["amount", "currency"]
}`

func TestSchemaRegistryValidatesRegisteredSkill(t *testing.T) {
	r := NewSchemaRegistry()
	require.NoError(t, r.Register("payments.charge", []byte(testSchema)))

	perr := r.ValidateData("payments.charge", []byte(`{"amount": 10, "currency": "USD"}`))
	require.Nil(t, perr)
}

func TestSchemaRegistryRejectsNonConformingData(t *testing.T) {
	r := NewSchemaRegistry()
	require.NoError(t, r.Register("payments.charge", []byte(testSchema)))

	perr := r.ValidateData("payments.charge", []byte(`{"amount": "ten"}`))
	require.NotNil(t, perr)
	require.Equal(t, ErrInvalidParams, perr.Kind)
}

func TestSchemaRegistrySkipsUnregisteredSkill(t *testing.T) {
	r := NewSchemaRegistry()
	perr := r.ValidateData("unknown.skill", []byte(`{"anything": true}`))
	require.Nil(t, perr)
}

func TestSchemaRegistryRejectsMalformedJSON(t *testing.T) {
	r := NewSchemaRegistry()
	require.NoError(t, r.Register("payments.charge", []byte(testSchema)))

	perr := r.ValidateData("payments.charge", []byte(`not json`))
	require.NotNil(t, perr)
}
