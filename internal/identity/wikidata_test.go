package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luminaries/pkg/types"
)

const wdPerson = `{"entities":{"Q7":{
  "id":"Q7",
  "labels":{"en":{"language":"en","value":"Jane Q. Researcher"},"zh":{"language":"zh","value":"简·研究员"}},
  "descriptions":{"en":{"language":"en","value":"computer scientist"}},
  "aliases":{"en":[{"language":"en","value":"J. Q. Researcher"}]},
  "claims":{
    "P21":[{"mainsnak":{"datavalue":{"value":{"id":"Q6581072"}}},"rank":"normal"}],
    "P27":[{"mainsnak":{"datavalue":{"value":{"id":"Q30"}}},"rank":"normal"}],
    "P106":[{"mainsnak":{"datavalue":{"value":{"id":"Q82594"}}},"rank":"normal"}],
    "P108":[{"mainsnak":{"datavalue":{"value":{"id":"Q900"}}},"rank":"preferred"},
            {"mainsnak":{"datavalue":{"value":{"id":"Q901"}}},"rank":"deprecated"}],
    "P569":[{"mainsnak":{"datavalue":{"value":{"time":"+1980-03-01T00:00:00Z"}}},"rank":"normal"}],
    "P18":[{"mainsnak":{"datavalue":{"value":"Jane Researcher.jpg"}},"rank":"normal"}],
    "P2037":[{"mainsnak":{"datavalue":{"value":"janeqr"}},"rank":"normal"}],
    "P496":[{"mainsnak":{"datavalue":{"value":"0000-0002-1825-0097"}},"rank":"normal"}]
  }}}}`

const wdLabels = `{"entities":{
  "Q30":{"id":"Q30","labels":{"en":{"language":"en","value":"United States"}}},
  "Q82594":{"id":"Q82594","labels":{"en":{"language":"en","value":"computer scientist"}}},
  "Q900":{"id":"Q900","labels":{"en":{"language":"en","value":"Acme Labs"}}}}}`

func newWikidataServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("action") {
		case "wbsearchentities":
			assert.Equal(t, "Jane Q. Researcher", q.Get("search"))
			_, _ = w.Write([]byte(`{"search":[{"id":"Q7","label":"Jane Q. Researcher","description":"computer scientist","aliases":["JQR"]}]}`))
		case "wbgetentities":
			switch {
			case q.Get("ids") == "Q7":
				_, _ = w.Write([]byte(wdPerson))
			case q.Get("ids") == "Q404":
				_, _ = w.Write([]byte(`{"entities":{"Q404":{"id":"Q404","missing":""}}}`))
			case strings.Contains(q.Get("ids"), "Q900"):
				assert.Equal(t, "labels", q.Get("props"))
				_, _ = w.Write([]byte(wdLabels))
			default:
				_, _ = w.Write([]byte(`{"error":{"code":"no-such-entity","info":"Could not find an entity"}}`))
			}
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestWikidata_Search(t *testing.T) {
	srv := newWikidataServer(t)
	defer srv.Close()

	wd := NewWikidata(WikidataConfig{BaseURL: srv.URL, Rate: 100})
	cands, err := wd.Search(context.Background(), "Jane Q. Researcher", 5)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Q7", cands[0].ID)
	assert.Equal(t, []string{"JQR"}, cands[0].Aliases)
}

func TestWikidata_GetEntity(t *testing.T) {
	srv := newWikidataServer(t)
	defer srv.Close()

	wd := NewWikidata(WikidataConfig{BaseURL: srv.URL, Rate: 100})
	e, err := wd.GetEntity(context.Background(), "Q7")
	require.NoError(t, err)

	assert.Equal(t, "Jane Q. Researcher", e.Label)
	assert.Equal(t, "computer scientist", e.Description)
	assert.Equal(t, []string{"简·研究员", "J. Q. Researcher"}, e.Aliases)
	assert.Equal(t, []string{"computer scientist"}, e.Occupations)
	assert.Equal(t, []string{"Acme Labs"}, e.Organizations, "deprecated claims are ignored")
	assert.Equal(t, "United States", e.Country)
	assert.Equal(t, "female", e.Gender)
	assert.Equal(t, 1980, e.BirthYear)
	assert.Equal(t, "https://commons.wikimedia.org/wiki/Special:FilePath/Jane_Researcher.jpg", e.ImageURL)

	id := types.PersonIdentity{Links: e.Links}
	gh, ok := id.LinkOf(types.LinkCode)
	require.True(t, ok)
	assert.Equal(t, "janeqr", gh.Handle)
	orcid, ok := id.LinkOf(types.LinkAcademic)
	require.True(t, ok)
	assert.Equal(t, "0000-0002-1825-0097", orcid.Handle)
}

func TestWikidata_MissingEntity(t *testing.T) {
	srv := newWikidataServer(t)
	defer srv.Close()

	wd := NewWikidata(WikidataConfig{BaseURL: srv.URL, Rate: 100})
	_, err := wd.GetEntity(context.Background(), "Q404")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = wd.GetEntity(context.Background(), "Q999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseWikidataYear(t *testing.T) {
	assert.Equal(t, 1980, parseWikidataYear("+1980-03-01T00:00:00Z"))
	assert.Equal(t, 0, parseWikidataYear("garbage"))
}
