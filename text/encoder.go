package text

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/saveeat/service"
)

// Pool 做 attention-mask 加权平均：Σ mask_i·h_i / Σ mask_i。
// mask 全为 0 时返回零向量。
func Pool(st service.TokenStates, dim int) []float64 {
	out := make([]float64, dim)
	var total float64
	for i, h := range st.Hidden {
		w := st.Mask[i]
		if w == 0 {
			continue
		}
		total += w
		for j := 0; j < dim && j < len(h); j++ {
			out[j] += w * h[j]
		}
	}
	if total < 1e-9 {
		return out
	}
	for j := range out {
		out[j] /= total
	}
	return out
}

// Encoder 把文档批量编码为定长向量。批次之间并发执行，输出顺序与输入一致。
type Encoder struct {
	Backbone  Backbone
	BatchSize int
	Workers   int
	Logger    zerolog.Logger
}

func NewEncoder(backbone Backbone, batchSize, workers int, logger zerolog.Logger) *Encoder {
	if batchSize <= 0 {
		batchSize = 32
	}
	if workers <= 0 {
		workers = 1
	}
	return &Encoder{
		Backbone:  backbone,
		BatchSize: batchSize,
		Workers:   workers,
		Logger:    logger.With().Str("component", "text_encoder").Str("backbone", backbone.Name()).Logger(),
	}
}

// Dim 输出维度。
func (e *Encoder) Dim() int { return e.Backbone.Dim() }

// Encode 编码 docs，返回 len(docs) 个向量。
func (e *Encoder) Encode(ctx context.Context, docs []string) ([][]float64, error) {
	out := make([][]float64, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for start := 0; start < len(docs); start += e.BatchSize {
		end := min(start+e.BatchSize, len(docs))
		g.Go(func() error {
			states, err := e.Backbone.Forward(ctx, docs[start:end])
			if err != nil {
				return err
			}
			if len(states) != end-start {
				return fmt.Errorf("text: backbone returned %d outputs for %d docs", len(states), end-start)
			}
			for i, st := range states {
				out[start+i] = Pool(st, e.Dim())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("text: encode: %w", err)
	}
	e.Logger.Debug().Int("docs", len(docs)).Msg("encoded documents")
	return out, nil
}

// Registry 缓存已加载的骨干模型，每个名字只加载一次。
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	once     sync.Once
	backbone Backbone
	err      error
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

var shared = NewRegistry()

// Shared 返回进程级骨干模型缓存。
func Shared() *Registry { return shared }

// Get 返回 name 对应的骨干；首次调用执行 loader，加载失败的结果同样被缓存。
func (r *Registry) Get(name string, loader func() (Backbone, error)) (Backbone, error) {
	r.mu.Lock()
	ent, ok := r.entries[name]
	if !ok {
		ent = &registryEntry{}
		r.entries[name] = ent
	}
	r.mu.Unlock()

	ent.once.Do(func() {
		ent.backbone, ent.err = loader()
	})
	return ent.backbone, ent.err
}
