package anthropic

// BuildCachedSystemBlocks constructs a system block with an ephemeral cache
// breakpoint. Stage prompts repeat the same instructions for every
// competitor, so the instructions go in the cached block.
func BuildCachedSystemBlocks(text string, ttl string) []SystemBlock {
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}
