package rerank

import (
	"fmt"
	"sort"
	"strings"

	"recommend-workers/internal/models"
)

// BuildPrompt renders the ranking instructions for the model. Candidates are
// referenced by their 1-based position.
func BuildPrompt(req Request) string {
	sig := req.Signals
	rc := sig.Context
	var b strings.Builder

	fmt.Fprintf(&b, "You are a recommendation engine ranking %s for one user.\n\n", categoryLabel(rc.Category))

	b.WriteString("USER\n")
	if rc.User != nil {
		fmt.Fprintf(&b, "- Location: %.4f, %.4f\n", rc.User.Lat, rc.User.Lng)
	}
	if tags := topTasteTags(sig.Profile, rc.Category); len(tags) > 0 {
		fmt.Fprintf(&b, "- Likes: %s\n", strings.Join(tags, ", "))
	}
	if len(rc.Moods) > 0 {
		fmt.Fprintf(&b, "- Mood: %s\n", strings.Join(rc.Moods, ", "))
	}
	if rc.MaxPrice != nil {
		fmt.Fprintf(&b, "- Max price level: %d\n", *rc.MaxPrice)
	}
	if rc.MaxMinutes != nil {
		fmt.Fprintf(&b, "- Max time: %d minutes\n", *rc.MaxMinutes)
	}
	if rc.QueryText != "" {
		fmt.Fprintf(&b, "- Looking for: %q\n", rc.QueryText)
	}

	b.WriteString("\nCANDIDATES\n")
	for i, c := range req.Candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Title)
		if len(c.ExternalRatings) > 0 {
			parts := make([]string, len(c.ExternalRatings))
			for j, r := range c.ExternalRatings {
				parts[j] = fmt.Sprintf("%s %.1f/10 (%d)", r.Source, r.Score, r.Count)
			}
			fmt.Fprintf(&b, "   Ratings: %s\n", strings.Join(parts, ", "))
		}
		if len(c.Tags) > 0 {
			fmt.Fprintf(&b, "   Tags: %s\n", strings.Join(c.Tags, ", "))
		}
		if c.PriceLevel != nil {
			fmt.Fprintf(&b, "   Price: %s\n", strings.Repeat("$", *c.PriceLevel))
		}
		if friends := sig.Friends[c.ID]; len(friends) > 0 {
			parts := make([]string, len(friends))
			for j, f := range friends {
				name := f.FriendName
				if name == "" {
					name = f.UserID
				}
				parts[j] = fmt.Sprintf("%s %.0f/10", name, f.Score)
			}
			fmt.Fprintf(&b, "   Friends: %s\n", strings.Join(parts, ", "))
		}
		if c.Description != "" {
			fmt.Fprintf(&b, "   About: %s\n", truncate(c.Description, maxDescriptionLen))
		}
	}

	n := explainedCount(rc.Mode, len(req.Candidates))
	b.WriteString("\nINSTRUCTIONS\n")
	fmt.Fprintf(&b, "Rank all %d candidates for this user. ", len(req.Candidates))
	fmt.Fprintf(&b, "Give hook, why_youll_like, friend_callout and caveats for the top %d only; leave them empty for the rest.\n", n)
	b.WriteString("Respond with JSON only: a list with one entry per candidate, best first, shaped as\n")
	b.WriteString(`[{"object_index": 1, "personalized_score": 8.7, "hook": "", "why_youll_like": "", "friend_callout": "", "caveats": ""}]`)
	b.WriteString("\npersonalized_score is 0 to 10. object_index is the candidate number above.\n")

	return b.String()
}

func topTasteTags(profile *models.UserProfile, category models.Category) []string {
	taste, ok := profile.Taste(category)
	if !ok || len(taste.Tags) == 0 {
		return nil
	}
	tags := make([]models.TagWeight, len(taste.Tags))
	copy(tags, taste.Tags)
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Weight > tags[j].Weight })
	if len(tags) > maxPromptTags {
		tags = tags[:maxPromptTags]
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Tag
	}
	return out
}

func categoryLabel(c models.Category) string {
	if c == "" {
		return "items"
	}
	return string(c)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
