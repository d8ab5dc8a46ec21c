package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"mediassist/ml"
)

const sampleCount = 5

// TrainingConfig 训练配置
type TrainingConfig struct {
	TrainPath   string
	TestPath    string
	LabelColumn string
	ModelType   string
	Forest      ml.ForestOptions
	Store       ArtifactStore
}

// TrainingRun 一次训练的摘要，用于写入训练日志
type TrainingRun struct {
	ModelType      string
	Accuracy       float64
	MacroPrecision float64
	MacroRecall    float64
	MacroF1        float64
	TrainRows      int
	TestRows       int
	NumFeatures    int
	NumClasses     int
	TrainedAt      time.Time
}

// TrainingRecorder 训练日志持久化
type TrainingRecorder interface {
	RecordTraining(ctx context.Context, run TrainingRun) error
}

// SamplePrediction 训练后对测试集前几行的抽样预测
type SamplePrediction struct {
	Actual     string
	Predicted  string
	Confidence float64
}

// TrainingResult 训练结果
type TrainingResult struct {
	Schema  *ml.FeatureSchema
	Model   ml.TrainableClassifier
	Report  *ml.EvaluationReport
	Samples []SamplePrediction
	Run     TrainingRun
}

// Trainer 训练流水线：加载 → 建立特征列 → 拟合 → 评估 → 成对保存
type Trainer struct {
	config   TrainingConfig
	cleaner  *DataCleaner
	recorder TrainingRecorder
	logger   *zap.Logger
}

// NewTrainer 创建训练器，recorder 可为 nil
func NewTrainer(config TrainingConfig, recorder TrainingRecorder, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.LabelColumn == "" {
		config.LabelColumn = "prognosis"
	}
	return &Trainer{
		config:   config,
		cleaner:  NewDataCleaner(logger),
		recorder: recorder,
		logger:   logger,
	}
}

// Run 执行训练；任一步失败都不会写出模型文件
func (t *Trainer) Run(ctx context.Context) (*TrainingResult, error) {
	start := time.Now()

	train, err := LoadDataset(t.config.TrainPath, t.config.LabelColumn, t.cleaner)
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}
	test, err := LoadDataset(t.config.TestPath, t.config.LabelColumn, t.cleaner)
	if err != nil {
		return nil, fmt.Errorf("load testing data: %w", err)
	}

	schema, err := ml.NewFeatureSchema(train.Columns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	test, err = test.AlignTo(schema.Names())
	if err != nil {
		return nil, fmt.Errorf("align testing data: %w", err)
	}

	t.logger.Info("datasets loaded",
		zap.Int("symptoms", schema.Len()),
		zap.Int("train_rows", len(train.Labels)),
		zap.Int("test_rows", len(test.Labels)),
		zap.Int("diseases", countUnique(train.Labels)))

	model, err := ml.NewModel(t.config.ModelType, t.config.Forest)
	if err != nil {
		return nil, err
	}
	fitStart := time.Now()
	if err := model.FitContext(ctx, train.Features, train.Labels); err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}
	t.logger.Info("model fitted",
		zap.String("model_type", model.ModelType()),
		zap.Int("classes", len(model.Classes())),
		zap.Duration("elapsed", time.Since(fitStart)))

	report, err := ml.Evaluate(model, test.Features, test.Labels)
	if err != nil {
		return nil, fmt.Errorf("evaluate model: %w", err)
	}
	t.logger.Info("model evaluated",
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("macro_f1", report.MacroAvg.F1))

	samples, err := samplePredictions(model, test, sampleCount)
	if err != nil {
		return nil, fmt.Errorf("sample predictions: %w", err)
	}

	if t.config.Store.Exists() {
		t.logger.Info("replacing existing artifacts", zap.String("dir", t.config.Store.Dir))
	}
	if err := t.config.Store.Save(schema, model); err != nil {
		return nil, fmt.Errorf("save artifacts: %w", err)
	}
	t.logger.Info("artifacts saved",
		zap.String("model", t.config.Store.ModelPath()),
		zap.String("columns", t.config.Store.ColumnsPath()),
		zap.Duration("total", time.Since(start)))

	result := &TrainingResult{
		Schema:  schema,
		Model:   model,
		Report:  report,
		Samples: samples,
		Run: TrainingRun{
			ModelType:      model.ModelType(),
			Accuracy:       report.Accuracy,
			MacroPrecision: report.MacroAvg.Precision,
			MacroRecall:    report.MacroAvg.Recall,
			MacroF1:        report.MacroAvg.F1,
			TrainRows:      len(train.Labels),
			TestRows:       len(test.Labels),
			NumFeatures:    schema.Len(),
			NumClasses:     len(model.Classes()),
			TrainedAt:      time.Now(),
		},
	}

	if t.recorder != nil {
		// 训练日志失败不影响已保存的模型
		if err := t.recorder.RecordTraining(ctx, result.Run); err != nil {
			t.logger.Warn("record training run failed", zap.Error(err))
		}
	}
	return result, nil
}

// WriteSummary 输出训练摘要、分类报告、混淆矩阵与抽样预测
func (r *TrainingResult) WriteSummary(w io.Writer) error {
	fmt.Fprintf(w, "Number of symptoms: %d\n", r.Run.NumFeatures)
	fmt.Fprintf(w, "Unique diseases: %d\n", r.Run.NumClasses)
	fmt.Fprintf(w, "Accuracy: %.4f\n\n", r.Run.Accuracy)
	fmt.Fprintln(w, "--- Classification Report ---")
	if err := r.Report.WriteText(w); err != nil {
		return err
	}
	fmt.Fprintln(w, "\n--- Confusion Matrix ---")
	if err := r.Report.WriteConfusionMatrix(w); err != nil {
		return err
	}
	fmt.Fprintln(w, "\n--- Sample Predictions ---")
	for i, s := range r.Samples {
		if _, err := fmt.Fprintf(w, "Sample %d: %s (%.2f%%)\n", i+1, s.Predicted, s.Confidence); err != nil {
			return err
		}
	}
	return nil
}

func samplePredictions(model ml.Classifier, test *Dataset, n int) ([]SamplePrediction, error) {
	if len(test.Features) < n {
		n = len(test.Features)
	}
	classes := model.Classes()
	if len(classes) == 0 {
		return nil, errors.New("model has no classes")
	}
	samples := make([]SamplePrediction, 0, n)
	for i := 0; i < n; i++ {
		proba, err := model.ClassProbabilities(test.Features[i])
		if err != nil {
			return nil, err
		}
		best := floats.MaxIdx(proba)
		samples = append(samples, SamplePrediction{
			Actual:     test.Labels[i],
			Predicted:  classes[best],
			Confidence: proba[best] * 100,
		})
	}
	return samples, nil
}

func countUnique(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
