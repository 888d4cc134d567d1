/*
 * @module service/mlpipeline/trainer
 * @description 训练流水线编排器，按固定阶段顺序执行并推送进度事件
 * @architecture 分层架构 - 训练流水线编排层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow loading -> preprocessing -> splitting -> scaling -> initializing -> training -> evaluating -> saving -> complete
 * @rules 进度百分比单调不减；任何阶段失败即终止并上报错误事件，不产生部分产物
 * @dependencies service/mlpipeline内部各层, log/slog
 * @refs service/training_service.go
 */

package mlpipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// 训练阶段名，顺序固定
const (
	StageLoading       = "loading"
	StagePreprocessing = "preprocessing"
	StageSplitting     = "splitting"
	StageScaling       = "scaling"
	StageInitializing  = "initializing"
	StageTraining      = "training"
	StageEvaluating    = "evaluating"
	StageSaving        = "saving"
	StageComplete      = "complete"
)

// 阶段对应的进度百分比
var stagePercents = map[string]int{
	StageLoading:       10,
	StagePreprocessing: 20,
	StageSplitting:     30,
	StageScaling:       40,
	StageInitializing:  50,
	StageTraining:      60,
	StageEvaluating:    80,
	StageSaving:        90,
	StageComplete:      100,
}

// ProgressEvent 训练进度事件
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// ProgressSink 进度事件接收器，即发即弃
type ProgressSink func(event ProgressEvent)

// DefaultSeed 默认随机种子，保证同一输入下训练结果可复现
const DefaultSeed = 42

// TrainRequest 一次训练的全部输入
type TrainRequest struct {
	Algorithm       string                 `json:"algorithm"`
	DatasetPath     string                 `json:"dataset_path"`
	TestSize        float64                `json:"test_size"`
	Hyperparameters map[string]interface{} `json:"hyperparameters"`
	ArtifactDir     string                 `json:"artifact_dir"`
	Seed            int64                  `json:"seed"`
}

// DatasetSize 训练数据规模
type DatasetSize struct {
	Train int `json:"train"`
	Test  int `json:"test"`
	Total int `json:"total"`
}

// TrainResult 训练成功后的输出
type TrainResult struct {
	Algorithm       string                 `json:"algorithm"`
	Metrics         EvalMetrics            `json:"metrics"`
	ConfusionMatrix ConfusionMatrix        `json:"confusion_matrix"`
	ModelPath       string                 `json:"model_path"`
	ScalerPath      string                 `json:"scaler_path"`
	DatasetSize     DatasetSize            `json:"dataset_size"`
	Duration        float64                `json:"training_duration"` // 秒
	Hyperparameters map[string]interface{} `json:"hyperparameters"`
}

// ValidateRequest 执行前的输入校验，不产生任何副作用
func ValidateRequest(req *TrainRequest) error {
	if !IsSupportedAlgorithm(req.Algorithm) {
		return fmt.Errorf("不支持的算法: %s", req.Algorithm)
	}
	if req.TestSize <= 0 || req.TestSize >= 1 {
		return fmt.Errorf("测试集比例必须在(0,1)之间: %v", req.TestSize)
	}
	if req.DatasetPath == "" {
		return fmt.Errorf("数据集路径不能为空")
	}
	if _, err := os.Stat(req.DatasetPath); err != nil {
		return fmt.Errorf("数据集文件不可访问: %w", err)
	}
	if _, err := MergeHyperparameters(req.Algorithm, req.Hyperparameters); err != nil {
		return err
	}
	return nil
}

// Trainer 训练流水线编排器
type Trainer struct {
	sink        ProgressSink
	lastPercent int
}

// NewTrainer 创建训练器，sink为空时进度事件仅写日志
func NewTrainer(sink ProgressSink) *Trainer {
	return &Trainer{sink: sink}
}

// Run 执行完整训练流水线
// 阶段顺序固定，进度单调不减；任何错误直接返回，调用方负责终态处理
func (t *Trainer) Run(ctx context.Context, req *TrainRequest) (*TrainResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if req.Seed == 0 {
		req.Seed = DefaultSeed
	}

	t.lastPercent = 0

	t.emit(StageLoading, "正在加载数据集...")
	dataset, err := LoadCSV(req.DatasetPath)
	if err != nil {
		return nil, err
	}

	t.emit(StagePreprocessing, "正在预处理特征...")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := dataset.ClassCounts()
	if counts[0] < 2 || counts[1] < 2 {
		return nil, fmt.Errorf("每个类别至少需要2个样本: normal=%d, attack=%d", counts[0], counts[1])
	}

	t.emit(StageSplitting, fmt.Sprintf("正在划分数据集 (%d%%训练, %d%%测试)...",
		int((1-req.TestSize)*100), int(req.TestSize*100)))
	split, err := TrainTestSplit(dataset.Features, dataset.Labels, req.TestSize, req.Seed)
	if err != nil {
		return nil, err
	}

	t.emit(StageScaling, "正在标准化特征...")
	scaler := &StandardScaler{}
	xTrain := scaler.FitTransform(split.XTrain)
	xTest := scaler.Transform(split.XTest)

	t.emit(StageInitializing, fmt.Sprintf("正在初始化%s模型...", req.Algorithm))
	est, err := NewEstimator(req.Algorithm, req.Hyperparameters)
	if err != nil {
		return nil, err
	}

	t.emit(StageTraining, fmt.Sprintf("正在训练%s模型...", req.Algorithm))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := est.Fit(xTrain, split.YTrain); err != nil {
		return nil, fmt.Errorf("模型训练失败: %w", err)
	}
	duration := time.Since(start).Seconds()

	t.emit(StageEvaluating, "正在评估模型性能...")
	yPred := est.Predict(xTest)
	probas := est.PredictProba(xTest)
	metrics, cm := Evaluate(split.YTest, yPred, probas)

	t.emit(StageSaving, "正在保存模型产物...")
	trainedAt := time.Now()
	paths := ArtifactNames(req.ArtifactDir, req.Algorithm, trainedAt)
	if err := SaveModel(paths.ModelPath, est, trainedAt); err != nil {
		return nil, err
	}
	if err := SaveScaler(paths.ScalerPath, scaler); err != nil {
		// 模型文件已落盘但缩放器失败，清理避免留下不完整产物
		os.Remove(paths.ModelPath)
		return nil, err
	}

	result := &TrainResult{
		Algorithm:       req.Algorithm,
		Metrics:         metrics,
		ConfusionMatrix: cm,
		ModelPath:       paths.ModelPath,
		ScalerPath:      paths.ScalerPath,
		DatasetSize: DatasetSize{
			Train: len(split.XTrain),
			Test:  len(split.XTest),
			Total: dataset.Len(),
		},
		Duration:        duration,
		Hyperparameters: req.Hyperparameters,
	}

	t.emit(StageComplete, "训练完成")
	return result, nil
}

// emit 推送进度事件，百分比不允许回退
func (t *Trainer) emit(stage, message string) {
	percent := stagePercents[stage]
	if percent < t.lastPercent {
		percent = t.lastPercent
	}
	t.lastPercent = percent

	event := ProgressEvent{Stage: stage, Percent: percent, Message: message}
	slog.Info("训练进度", "stage", event.Stage, "percent", event.Percent, "message", event.Message)

	if t.sink != nil {
		t.sink(event)
	}
}
