package reddit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SearchPlan drives the per-show collection sweep: which subreddits to
// search, which query templates to expand, and how results are judged.
type SearchPlan struct {
	// Subreddits searched for every show, in order.
	Subreddits []string `yaml:"subreddits"`
	// Terms are query templates; "{title}" expands to the show title.
	Terms []string `yaml:"terms"`
	// LimitPerSearch caps results per subreddit+term pair.
	LimitPerSearch int `yaml:"limit_per_search"`
	// DiscussionKeywords mark a post title as an episode discussion.
	DiscussionKeywords []string `yaml:"discussion_keywords"`
	// MinShowSubscribers gates including a show's own subreddit.
	MinShowSubscribers int `yaml:"min_show_subscribers"`
}

// DefaultSearchPlan mirrors the sweep the collector has always run.
func DefaultSearchPlan() SearchPlan {
	return SearchPlan{
		Subreddits: []string{"television", "netflix", "hbo", "AskReddit"},
		Terms: []string{
			"{title}",
			"{title} discussion",
			"{title} episode",
			"{title} finale",
			"{title} season",
		},
		LimitPerSearch:     25,
		DiscussionKeywords: []string{"discussion", "episode", "finale", "thoughts"},
		MinShowSubscribers: 100,
	}
}

// LoadSearchPlan reads a plan from a YAML file, falling back to defaults
// for any omitted field. An empty path returns the default plan.
func LoadSearchPlan(path string) (SearchPlan, error) {
	plan := DefaultSearchPlan()
	if path == "" {
		return plan, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return SearchPlan{}, fmt.Errorf("op=reddit.plan_read: %w", err)
	}
	var loaded SearchPlan
	if err := yaml.Unmarshal(b, &loaded); err != nil {
		return SearchPlan{}, fmt.Errorf("op=reddit.plan_parse: %w", err)
	}
	if len(loaded.Subreddits) > 0 {
		plan.Subreddits = loaded.Subreddits
	}
	if len(loaded.Terms) > 0 {
		plan.Terms = loaded.Terms
	}
	if loaded.LimitPerSearch > 0 {
		plan.LimitPerSearch = loaded.LimitPerSearch
	}
	if len(loaded.DiscussionKeywords) > 0 {
		plan.DiscussionKeywords = loaded.DiscussionKeywords
	}
	if loaded.MinShowSubscribers > 0 {
		plan.MinShowSubscribers = loaded.MinShowSubscribers
	}
	return plan, nil
}

// Queries expands the term templates for one show title.
func (p SearchPlan) Queries(title string) []string {
	out := make([]string, 0, len(p.Terms))
	for _, t := range p.Terms {
		out = append(out, strings.ReplaceAll(t, "{title}", title))
	}
	return out
}

// ShowSubredditName derives the candidate subreddit name for a show, e.g.
// "Breaking Bad" to "breakingbad".
func ShowSubredditName(title string) string {
	s := strings.ToLower(title)
	for _, cut := range []string{" ", ":", "-"} {
		s = strings.ReplaceAll(s, cut, "")
	}
	return s
}

// IsRelevant reports whether a post actually mentions the show. Search
// results can match on flair or comments, so the title gate is explicit.
func (p SearchPlan) IsRelevant(title string, post Post) bool {
	needle := strings.ToLower(title)
	return strings.Contains(strings.ToLower(post.Title), needle) ||
		strings.Contains(strings.ToLower(post.SelfText), needle)
}

// IsDiscussion reports whether a post title looks like an episode thread.
func (p SearchPlan) IsDiscussion(post Post) bool {
	lower := strings.ToLower(post.Title)
	for _, kw := range p.DiscussionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
