package connector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

func TestStatic_Paging(t *testing.T) {
	t.Parallel()
	var in []Fragment
	for i := range 25 {
		in = append(in, Fragment{Name: fmt.Sprintf("lead-%02d", i), Content: longText})
	}
	st := NewStatic(in)
	assert.Equal(t, model.SourceManual, st.Source())

	var done []PageDone
	frags, errs := drain(t, st.Search(context.Background(), SearchRequest{
		OnPage: func(p PageDone) { done = append(done, p) },
	}))
	require.Empty(t, errs)
	require.Len(t, frags, 25)
	assert.Equal(t, 3, frags[24].Page)
	require.Len(t, done, 3)
	assert.Equal(t, 5, done[2].Yielded)

	frags, _ = drain(t, st.Search(context.Background(), SearchRequest{StartPage: 2, Limit: 4}))
	require.Len(t, frags, 4)
	assert.Equal(t, "lead-10", frags[0].Name)
}

func TestStatic_StopsOnBreak(t *testing.T) {
	t.Parallel()
	st := NewStatic([]Fragment{{Name: "a"}, {Name: "b"}, {Name: "c"}})

	n := 0
	for range st.Search(context.Background(), SearchRequest{}) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestLoadManual(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "leads.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
leads:
  - name: Priya
    headline: Founder at Chai Co
    content: We track every order on paper and lose a few each day.
    url: https://www.linkedin.com/in/priya
`), 0o644))

	jsonPath := filepath.Join(dir, "leads.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"name":"Ravi","headline":"CTO","company":"Acme","content":"help"}]`), 0o644))

	frags, err := LoadManual(yamlPath)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "Priya", frags[0].Name)
	assert.Equal(t, "Founder at Chai Co", frags[0].Headline)

	frags, err = LoadManual(jsonPath)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "Acme", frags[0].Company)

	_, err = LoadManual(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
