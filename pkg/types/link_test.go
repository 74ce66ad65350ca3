package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/pkg/types"
)

func TestDecodeLinks_CurrentShape(t *testing.T) {
	links, err := types.DecodeLinks([]byte(`[{"kind":"code","platform":"github","handle":"jqr","url":"https://github.com/jqr"}]`))
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, types.LinkCode, links[0].Kind)
	assert.Equal(t, "jqr", links[0].Handle)
}

func TestDecodeLinks_PlatformMap(t *testing.T) {
	links, err := types.DecodeLinks([]byte(`{"github":"https://github.com/jqr","twitter":"@jq_research","youtube":"https://www.youtube.com/channel/UC123"}`))
	require.NoError(t, err)
	require.Len(t, links, 3)

	byKind := map[types.LinkKind]types.Link{}
	for _, l := range links {
		byKind[l.Kind] = l
	}
	assert.Equal(t, "jqr", byKind[types.LinkCode].Handle)
	assert.Equal(t, "jq_research", byKind[types.LinkSocial].Handle)
	assert.Equal(t, "x", byKind[types.LinkSocial].Platform)
	assert.Equal(t, "UC123", byKind[types.LinkVideo].Handle)
}

func TestDecodeLinks_MixedKeyNames(t *testing.T) {
	links, err := types.DecodeLinks([]byte(`[
		{"platform":"github","username":"jqr"},
		{"site":"orcid","href":"https://orcid.org/0000-0002-1825-0097"},
		{"type":"homepage","link":"https://jq.example.org"},
		"https://github.com/jqr"
	]`))
	require.NoError(t, err)
	require.Len(t, links, 3, "bare github URL duplicates the username entry")

	kinds := []types.LinkKind{}
	for _, l := range links {
		kinds = append(kinds, l.Kind)
	}
	assert.ElementsMatch(t, []types.LinkKind{types.LinkCode, types.LinkAcademic, types.LinkWebsite}, kinds)
}

func TestDecodeLinks_EmptyAndNull(t *testing.T) {
	for _, in := range []string{"", "null", "  "} {
		links, err := types.DecodeLinks([]byte(in))
		require.NoError(t, err)
		assert.Empty(t, links)
	}
}

func TestDecodeLinks_Invalid(t *testing.T) {
	_, err := types.DecodeLinks([]byte(`42`))
	assert.Error(t, err)

	_, err = types.DecodeLinks([]byte(`{not json`))
	assert.Error(t, err)
}

func TestNormalizeAliases(t *testing.T) {
	got := types.NormalizeAliases("Jane Q. Researcher", []string{" jane q. researcher", "JQR", "", "jqr", "简·研究者"})
	assert.Equal(t, []string{"JQR", "简·研究者"}, got)
}

func TestCareerEventOngoing(t *testing.T) {
	e := types.CareerEvent{}
	assert.True(t, e.Ongoing())
	e.EndUnknown = true
	assert.False(t, e.Ongoing())
}
