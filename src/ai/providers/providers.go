// Package providers registers all built-in AI providers via blank imports.
package providers

import (
	_ "github.com/stake-plus/agora/src/ai/anthropic"
	_ "github.com/stake-plus/agora/src/ai/openai"
)
