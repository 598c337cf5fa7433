package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"premia/internal/logger"
)

// Persister 是模型快照的存取后端（文件、数据库均可）。
// LoadSnapshot 在没有历史快照时返回 (nil, nil)。
type Persister interface {
	SaveSnapshot(ctx context.Context, data []byte) error
	LoadSnapshot(ctx context.Context) ([]byte, error)
}

const snapshotVersion = 1

// snapshotManifest 是快照 JSON 的结构约束，加载前先校验，
// 防止把损坏或手改过的快照半吊子地恢复进引擎。
const snapshotManifest = `{
  "type": "object",
  "required": ["version", "feature_names", "trained_feature_names"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "feature_names": {"type": "array", "items": {"type": "string"}},
    "trained_feature_names": {"type": "array", "items": {"type": "string"}},
    "scaler": {"type": "object"},
    "models": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["kind"],
        "properties": {"kind": {"enum": ["softmax", "ridge"]}}
      }
    },
    "sequence": {
      "type": ["object", "null"],
      "properties": {
        "input_size": {"type": "integer", "minimum": 1},
        "seq_len": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var snapshotSchema = jsonschema.MustCompileString("snapshot.json", snapshotManifest)

// modelState 按类型标签区分序列化的分类器与回归器。
type modelState struct {
	Kind    string             `json:"kind"`
	Softmax *SoftmaxClassifier `json:"softmax,omitempty"`
	Ridge   *RidgeRegressor    `json:"ridge,omitempty"`
}

// snapshot 是引擎的全量持久化形态。
type snapshot struct {
	Version             int                  `json:"version"`
	FeatureNames        []string             `json:"feature_names"`
	TrainedFeatureNames []string             `json:"trained_feature_names"`
	Scaler              StandardScaler       `json:"scaler"`
	Models              map[Role]*modelState `json:"models"`
	Sequence            *SequenceModel       `json:"sequence,omitempty"`
}

// saveLocked 序列化当前状态并写入后端。调用方必须持有 e.mu。
// 写盘前校验所有经典模型的输入宽度与冻结 schema 一致，
// 宽度漂移的快照宁可不写，也不能留下一份加载即炸的存档。
func (e *Engine) saveLocked(ctx context.Context) error {
	if e.frozen == nil {
		return fmt.Errorf("predict: 冻结 schema 缺失，无法持久化")
	}
	for role, model := range e.models {
		if w := model.InputWidth(); w != e.frozen.Len() {
			return fmt.Errorf("predict: 角色 %s 输入宽度 %d 与冻结宽度 %d 不符", role, w, e.frozen.Len())
		}
	}

	snap := snapshot{
		Version:             snapshotVersion,
		FeatureNames:        e.schema.Names(),
		TrainedFeatureNames: e.frozen.Names(),
		Scaler:              e.scaler,
		Models:              make(map[Role]*modelState, len(e.models)),
		Sequence:            e.seq,
	}
	for role, model := range e.models {
		switch m := model.(type) {
		case *SoftmaxClassifier:
			snap.Models[role] = &modelState{Kind: "softmax", Softmax: m}
		case *RidgeRegressor:
			snap.Models[role] = &modelState{Kind: "ridge", Ridge: m}
		default:
			return fmt.Errorf("predict: 角色 %s 的模型类型无法序列化", role)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("predict: 快照序列化失败: %w", err)
	}
	if err := e.persist.SaveSnapshot(ctx, data); err != nil {
		return fmt.Errorf("predict: 快照写入失败: %w", err)
	}
	logger.Infof("predict: 模型快照已保存（%d 角色，%d 列）", len(snap.Models), e.frozen.Len())
	return nil
}

// Load 从后端恢复模型状态。没有快照视为全新启动；
// 快照损坏或版本不符时记录告警并保持空白状态，绝不 panic。
func (e *Engine) Load(ctx context.Context) error {
	if e.persist == nil {
		return nil
	}
	data, err := e.persist.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("predict: 快照读取失败: %w", err)
	}
	if len(data) == 0 {
		logger.Infof("predict: 没有历史快照，全新启动")
		return nil
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warnf("predict: 快照不是合法 JSON，忽略: %v", err)
		return nil
	}
	if err := snapshotSchema.Validate(doc); err != nil {
		logger.Warnf("predict: 快照结构校验失败，忽略: %v", err)
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warnf("predict: 快照解码失败，忽略: %v", err)
		return nil
	}
	if snap.Version != snapshotVersion {
		logger.Warnf("predict: 快照版本 %d 与当前 %d 不符，全新启动", snap.Version, snapshotVersion)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.schema = SchemaFromNames(snap.FeatureNames)
	if len(snap.TrainedFeatureNames) > 0 {
		e.frozen = SchemaFromNames(snap.TrainedFeatureNames)
	}
	e.scaler = snap.Scaler

	e.models = make(map[Role]Model, len(snap.Models))
	for role, state := range snap.Models {
		switch {
		case state.Kind == "softmax" && state.Softmax != nil:
			e.models[role] = state.Softmax
		case state.Kind == "ridge" && state.Ridge != nil:
			e.models[role] = state.Ridge
		default:
			logger.Warnf("predict: 角色 %s 的快照字段缺失，跳过", role)
		}
	}

	// 序列模型：输入宽度与当前 schema 不符时整体重建
	//（优化器动量不持久化，恢复后重新积累）。
	if snap.Sequence != nil && snap.Sequence.InputSize == e.schema.Len() {
		e.seq = snap.Sequence
		e.seq.opt = newAdamState(e.seq.HiddenSize, seqClasses)
	} else if e.schema.Len() > 0 {
		if snap.Sequence != nil {
			logger.Warnf("predict: 序列模型输入宽度 %d 与 schema %d 不符，重建",
				snap.Sequence.InputSize, e.schema.Len())
		}
		e.seq = NewSequenceModel(e.schema.Len(), e.cfg.SequenceLength)
	}

	if len(e.models) > 0 {
		e.trained = true
	}
	logger.Infof("predict: 快照恢复完成（%d 角色）: %s", len(e.models), strings.Join(roleNames(e.models), ","))
	return nil
}

func roleNames(models map[Role]Model) []string {
	out := make([]string, 0, len(models))
	for role := range models {
		out = append(out, string(role))
	}
	return out
}
