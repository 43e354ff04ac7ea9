package council

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stake-plus/agora/src/agent"
	"github.com/stake-plus/agora/src/types"
)

// trimHistory collapses a history grown past limit into one summary message
// followed by the keep most recent raw entries. On summarizer failure the
// history is returned untrimmed; losing context beats fabricating it.
func trimHistory(ctx context.Context, ag agent.Agent, h types.ChatHistory, limit, keep int) (types.ChatHistory, error) {
	if limit <= 0 || len(h) <= limit {
		return h, nil
	}
	if keep < 0 || keep >= len(h) {
		return h, nil
	}

	old := h[:len(h)-keep]
	recent := h[len(h)-keep:]

	var b strings.Builder
	for _, msg := range old {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	summary, err := ag.Summarize(ctx, b.String())
	if err != nil {
		return h, err
	}

	out := make(types.ChatHistory, 0, keep+1)
	out = append(out, types.ChatMessage{
		Role:    "system",
		Content: "Summary of earlier rounds: " + summary,
		At:      time.Now().UTC(),
	})
	out = append(out, recent...)
	return out, nil
}
