package ml

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"
)

type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

type AverageMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// EvaluationReport mirrors a classification report: per-label metrics over
// the union of true and predicted labels, plus a confusion matrix over the
// model's classes (rows actual, columns predicted).
type EvaluationReport struct {
	Accuracy        float64        `json:"accuracy"`
	Samples         int            `json:"samples"`
	PerClass        []ClassMetrics `json:"per_class"`
	MacroAvg        AverageMetrics `json:"macro_avg"`
	WeightedAvg     AverageMetrics `json:"weighted_avg"`
	Classes         []string       `json:"classes"`
	ConfusionMatrix [][]int        `json:"confusion_matrix"`
}

func Evaluate(model Classifier, features [][]float64, labels []string) (*EvaluationReport, error) {
	if len(features) == 0 {
		return nil, errors.New("no evaluation samples")
	}
	if len(features) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}
	predicted := make([]string, len(features))
	for i, row := range features {
		label, err := model.Classify(row)
		if err != nil {
			return nil, fmt.Errorf("classify sample %d: %w", i, err)
		}
		predicted[i] = label
	}
	return NewEvaluationReport(model.Classes(), labels, predicted), nil
}

func NewEvaluationReport(classes, actual, predicted []string) *EvaluationReport {
	report := &EvaluationReport{
		Samples: len(actual),
		Classes: append([]string(nil), classes...),
	}

	truePos := make(map[string]int)
	predCount := make(map[string]int)
	support := make(map[string]int)
	labelSet := make(map[string]struct{})
	correct := 0
	for i := range actual {
		a, p := actual[i], predicted[i]
		support[a]++
		predCount[p]++
		labelSet[a] = struct{}{}
		labelSet[p] = struct{}{}
		if a == p {
			truePos[a]++
			correct++
		}
	}
	if len(actual) > 0 {
		report.Accuracy = float64(correct) / float64(len(actual))
	}

	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	precisions := make([]float64, len(labels))
	recalls := make([]float64, len(labels))
	f1s := make([]float64, len(labels))
	weights := make([]float64, len(labels))
	for i, label := range labels {
		m := ClassMetrics{Label: label, Support: support[label]}
		if predCount[label] > 0 {
			m.Precision = float64(truePos[label]) / float64(predCount[label])
		}
		if support[label] > 0 {
			m.Recall = float64(truePos[label]) / float64(support[label])
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.PerClass = append(report.PerClass, m)
		precisions[i], recalls[i], f1s[i] = m.Precision, m.Recall, m.F1
		weights[i] = float64(m.Support)
	}

	if len(labels) > 0 {
		report.MacroAvg = AverageMetrics{
			Precision: stat.Mean(precisions, nil),
			Recall:    stat.Mean(recalls, nil),
			F1:        stat.Mean(f1s, nil),
			Support:   len(actual),
		}
		if len(actual) > 0 {
			report.WeightedAvg = AverageMetrics{
				Precision: stat.Mean(precisions, weights),
				Recall:    stat.Mean(recalls, weights),
				F1:        stat.Mean(f1s, weights),
				Support:   len(actual),
			}
		}
	}

	index := make(map[string]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	report.ConfusionMatrix = make([][]int, len(classes))
	for i := range report.ConfusionMatrix {
		report.ConfusionMatrix[i] = make([]int, len(classes))
	}
	for i := range actual {
		a, okA := index[actual[i]]
		p, okP := index[predicted[i]]
		if okA && okP {
			report.ConfusionMatrix[a][p]++
		}
	}
	return report
}

// WriteText renders the report as aligned text columns.
func (r *EvaluationReport) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\tprecision\trecall\tf1-score\tsupport\t\n")
	for _, m := range r.PerClass {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(tw, "\t\t\t\t\t\n")
	fmt.Fprintf(tw, "accuracy\t\t\t%.2f\t%d\t\n", r.Accuracy, r.Samples)
	fmt.Fprintf(tw, "macro avg\t%.2f\t%.2f\t%.2f\t%d\t\n", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(tw, "weighted avg\t%.2f\t%.2f\t%.2f\t%d\t\n", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	return tw.Flush()
}

// WriteConfusionMatrix prints one row per actual class, listing only the
// non-zero predicted cells to keep wide label sets readable.
func (r *EvaluationReport) WriteConfusionMatrix(w io.Writer) error {
	for i, row := range r.ConfusionMatrix {
		cells := make([]string, 0)
		for j, count := range row {
			if count > 0 {
				cells = append(cells, fmt.Sprintf("%s=%d", r.Classes[j], count))
			}
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", r.Classes[i], strings.Join(cells, ", ")); err != nil {
			return err
		}
	}
	return nil
}
