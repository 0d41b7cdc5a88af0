package anthropic

// CachedSystem builds a single system block with an ephemeral cache
// breakpoint. Every lead in a run shares the same taxonomy prompt, so all
// requests after the first read it from the prompt cache.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
