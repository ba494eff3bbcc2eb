package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// 5-minute ephemeral cache breakpoint. The reconstruction and patch system
// prompts are static, so repeated ingests within the window hit the cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
