package anthropic

// BuildCachedSystemBlocks splits a system prompt into a stable instruction
// block and a per-application context block, putting the cache breakpoint
// after the context so every field of one application reuses the cached
// prefix. An empty context yields a single cached block.
func BuildCachedSystemBlocks(instructions, context string) []SystemBlock {
	if context == "" {
		return []SystemBlock{{Text: instructions, CacheControl: &CacheControl{TTL: "5m"}}}
	}
	return []SystemBlock{
		{Text: instructions},
		{Text: context, CacheControl: &CacheControl{TTL: "5m"}},
	}
}
