package text

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/rushteam/saveeat/service"
)

// Backbone 是预训练句向量模型：对每个文本输出 token 隐状态与 attention mask。
type Backbone interface {
	Name() string
	Dim() int
	Forward(ctx context.Context, texts []string) ([]service.TokenStates, error)
}

// HashingBackbone 是本地的确定性骨干：每个 token 由其哈希种子生成单位向量，
// 序列补齐到 MaxLength，补齐位的 mask 为 0。无需外部服务即可离线训练与测试。
type HashingBackbone struct {
	dim       int
	maxLength int
}

func NewHashingBackbone(dim, maxLength int) *HashingBackbone {
	if maxLength <= 0 {
		maxLength = 128
	}
	return &HashingBackbone{dim: dim, maxLength: maxLength}
}

func (b *HashingBackbone) Name() string { return fmt.Sprintf("hashing-%d", b.dim) }
func (b *HashingBackbone) Dim() int     { return b.dim }

func (b *HashingBackbone) Forward(ctx context.Context, texts []string) ([]service.TokenStates, error) {
	out := make([]service.TokenStates, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = b.encode(t)
	}
	return out, nil
}

func (b *HashingBackbone) encode(text string) service.TokenStates {
	tokens := Tokenize(text)
	if len(tokens) > b.maxLength {
		tokens = tokens[:b.maxLength]
	}
	st := service.TokenStates{
		Hidden: make([][]float64, b.maxLength),
		Mask:   make([]float64, b.maxLength),
	}
	for i := range st.Hidden {
		if i < len(tokens) {
			st.Hidden[i] = b.tokenVector(tokens[i])
			st.Mask[i] = 1
		} else {
			st.Hidden[i] = make([]float64, b.dim)
		}
	}
	return st
}

func (b *HashingBackbone) tokenVector(tok string) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	v := make([]float64, b.dim)
	var norm float64
	for i := range v {
		v[i] = rng.NormFloat64()
		norm += v[i] * v[i]
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

// Tokenize 小写后按非字母数字切分。
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ServiceBackbone 通过远端模型服务（如 TorchServe 部署的 MiniLM）获取 token 隐状态。
type ServiceBackbone struct {
	svc       service.EmbeddingService
	name      string
	dim       int
	maxLength int
}

func NewServiceBackbone(svc service.EmbeddingService, name string, dim, maxLength int) *ServiceBackbone {
	return &ServiceBackbone{svc: svc, name: name, dim: dim, maxLength: maxLength}
}

func (b *ServiceBackbone) Name() string { return b.name }
func (b *ServiceBackbone) Dim() int     { return b.dim }

func (b *ServiceBackbone) Forward(ctx context.Context, texts []string) ([]service.TokenStates, error) {
	resp, err := b.svc.EmbedTokens(ctx, &service.EmbedRequest{Texts: texts, MaxLength: b.maxLength})
	if err != nil {
		return nil, fmt.Errorf("text: backbone %s: %w", b.name, err)
	}
	for i, o := range resp.Outputs {
		for _, h := range o.Hidden {
			if len(h) != b.dim {
				return nil, fmt.Errorf("text: backbone %s: output %d has dim %d, want %d", b.name, i, len(h), b.dim)
			}
		}
	}
	return resp.Outputs, nil
}
