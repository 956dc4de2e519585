package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/saveeat/core"
)

// Hook 在每个 Node 执行后回调，用于打点。
type Hook func(node Node, in, out int, elapsed time.Duration, err error)

// Pipeline 把推荐逻辑拆成可组合的 Node 链，按顺序执行。
type Pipeline struct {
	Name   string
	Nodes  []Node
	Logger zerolog.Logger
	Hooks  []Hook
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		elapsed := time.Since(start)
		for _, h := range p.Hooks {
			h(node, len(cur), len(next), elapsed, err)
		}
		if err != nil {
			p.Logger.Error().Err(err).
				Str("node", node.Name()).
				Str("kind", string(node.Kind())).
				Msg("pipeline node failed")
			return nil, fmt.Errorf("pipeline %s: node %s: %w", p.Name, node.Name(), err)
		}
		p.Logger.Debug().
			Str("node", node.Name()).
			Int("in", len(cur)).
			Int("out", len(next)).
			Dur("elapsed", elapsed).
			Msg("pipeline node done")
		cur = next
	}
	return cur, nil
}
