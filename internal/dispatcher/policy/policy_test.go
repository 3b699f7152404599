package policy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFromHeadersParsesCSV(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderAllowSkills, "summarize, translate")
	h.Set(HeaderDenySkills, "delete-account")

	p := ExtractFromHeaders(h)
	require.Equal(t, []string{"summarize", "translate"}, p.AllowList)
	require.Equal(t, []string{"delete-account"}, p.DenyList)
}

func TestAllowsWithNoRestriction(t *testing.T) {
	p := Policy{}
	require.True(t, p.Allows("anything"))
}

func TestAllowsRespectsAllowList(t *testing.T) {
	p := Policy{AllowList: []string{"summarize"}}
	require.True(t, p.Allows("summarize"))
	require.False(t, p.Allows("translate"))
}

func TestDenyListOverridesAllowList(t *testing.T) {
	p := Policy{AllowList: []string{"summarize"}, DenyList: []string{"summarize"}}
	require.False(t, p.Allows("summarize"))
}
