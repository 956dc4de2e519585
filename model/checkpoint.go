package model

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/nn"
	"github.com/rushteam/saveeat/pkg/utils"
)

// CheckpointVersion 是检查点的 schema 版本。
const CheckpointVersion = 1

// Checkpoint 是训练产物：模型权重、优化器状态和保存时的 epoch/指标。
type Checkpoint struct {
	Version    int                      `json:"version"`
	Config     Config                   `json:"config"`
	Epoch      int                      `json:"epoch"`
	MetricName string                   `json:"metric_name"`
	Metric     float64                  `json:"metric"`
	Params     map[string]nn.ParamState `json:"params"`
	Optimizer  *nn.AdamWState           `json:"optimizer,omitempty"`
	SavedAt    time.Time                `json:"saved_at"`
}

// Snapshot 拷贝当前权重（及优化器状态）生成检查点。
func (m *Model) Snapshot(epoch int, metricName string, metric float64, opt *nn.AdamW) *Checkpoint {
	ck := &Checkpoint{
		Version:    CheckpointVersion,
		Config:     m.Config,
		Epoch:      epoch,
		MetricName: metricName,
		Metric:     metric,
		Params:     m.Params.State(),
		SavedAt:    time.Now().UTC(),
	}
	if opt != nil {
		st := opt.State()
		ck.Optimizer = &st
	}
	return ck
}

// Restore 用检查点覆盖当前权重。
func (m *Model) Restore(ck *Checkpoint) error {
	return m.Params.LoadState(ck.Params)
}

// FromCheckpoint 在图 g 上重建模型并加载权重。
// 权重与图不匹配（例如图被重建过）时返回 MODEL_UNAVAILABLE。
func FromCheckpoint(ck *Checkpoint, g *graph.Graph) (*Model, error) {
	m, err := New(ck.Config, g, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
	}
	if err := m.Restore(ck); err != nil {
		return nil, fmt.Errorf("%w: checkpoint does not match graph: %v", core.ErrModelUnavailable, err)
	}
	return m, nil
}

// WriteCheckpoint 序列化检查点。
func WriteCheckpoint(w io.Writer, ck *Checkpoint) error {
	if err := json.NewEncoder(w).Encode(ck); err != nil {
		return fmt.Errorf("model: encode checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoint 反序列化并校验版本。
func ReadCheckpoint(r io.Reader) (*Checkpoint, error) {
	var ck Checkpoint
	if err := json.NewDecoder(r).Decode(&ck); err != nil {
		return nil, fmt.Errorf("model: decode checkpoint: %w", err)
	}
	if ck.Version != CheckpointVersion {
		return nil, fmt.Errorf("model: unsupported checkpoint version %d (want %d)", ck.Version, CheckpointVersion)
	}
	return &ck, nil
}

// SaveCheckpoint 原子写入检查点文件。
func SaveCheckpoint(path string, ck *Checkpoint) error {
	err := utils.WriteFileAtomic(path, func(w io.Writer) error { return WriteCheckpoint(w, ck) })
	if err != nil {
		return fmt.Errorf("model: save checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpoint 读取检查点文件；文件不存在时返回 MODEL_UNAVAILABLE。
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open checkpoint: %v", core.ErrModelUnavailable, err)
	}
	defer f.Close()
	return ReadCheckpoint(f)
}
