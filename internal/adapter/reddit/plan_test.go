package reddit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSearchPlan(t *testing.T) {
	p := DefaultSearchPlan()
	assert.Equal(t, []string{"television", "netflix", "hbo", "AskReddit"}, p.Subreddits)
	assert.Len(t, p.Terms, 5)
	assert.Equal(t, 25, p.LimitPerSearch)
	assert.Equal(t, 100, p.MinShowSubscribers)
}

func TestLoadSearchPlan_EmptyPathUsesDefaults(t *testing.T) {
	p, err := LoadSearchPlan("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchPlan(), p)
}

func TestLoadSearchPlan_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subreddits: [television]\nlimit_per_search: 10\n"), 0o644))

	p, err := LoadSearchPlan(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"television"}, p.Subreddits)
	assert.Equal(t, 10, p.LimitPerSearch)
	// Omitted fields keep defaults.
	assert.Len(t, p.Terms, 5)
	assert.Equal(t, 100, p.MinShowSubscribers)
}

func TestLoadSearchPlan_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- nope"), 0o644))
	_, err := LoadSearchPlan(path)
	require.Error(t, err)
}

func TestQueries(t *testing.T) {
	p := DefaultSearchPlan()
	qs := p.Queries("Breaking Bad")
	assert.Equal(t, "Breaking Bad", qs[0])
	assert.Equal(t, "Breaking Bad discussion", qs[1])
	assert.Equal(t, "Breaking Bad season", qs[4])
}

func TestShowSubredditName(t *testing.T) {
	assert.Equal(t, "breakingbad", ShowSubredditName("Breaking Bad"))
	assert.Equal(t, "avatarthelastairbender", ShowSubredditName("Avatar: The Last Airbender"))
	assert.Equal(t, "obiwankenobi", ShowSubredditName("Obi-Wan Kenobi"))
}

func TestIsRelevant(t *testing.T) {
	p := DefaultSearchPlan()
	assert.True(t, p.IsRelevant("Breaking Bad", Post{Title: "Just finished Breaking Bad"}))
	assert.True(t, p.IsRelevant("Breaking Bad", Post{Title: "What to watch?", SelfText: "try breaking bad"}))
	assert.False(t, p.IsRelevant("Breaking Bad", Post{Title: "Best shows ever", SelfText: "The Wire"}))
}

func TestIsDiscussion(t *testing.T) {
	p := DefaultSearchPlan()
	assert.True(t, p.IsDiscussion(Post{Title: "Breaking Bad S05E14 Episode Discussion"}))
	assert.True(t, p.IsDiscussion(Post{Title: "Thoughts on the finale?"}))
	assert.False(t, p.IsDiscussion(Post{Title: "Breaking Bad wallpaper"}))
}
