/*
 * @module service/mlpipeline/dataset
 * @description 数据集加载与分析，负责CSV读取、列校验、空值统计和特征概要统计
 * @architecture 分层架构 - 训练流水线数据层
 * @documentReference dev_docs/training_pipeline.md
 * @stateFlow CSV读取 -> 列校验 -> 行解析 -> 统计汇总
 * @rules 数据集加载后只读；缺列或无有效样本视为加载错误
 * @dependencies encoding/csv, github.com/spf13/cast, gonum.org/v1/gonum/stat
 * @refs service/training_service.go
 */

package mlpipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/stat"
)

// FeatureColumns 固定特征列，顺序即特征向量顺序
var FeatureColumns = []string{
	"packet_size",
	"inter_arrival_time",
	"packet_rate",
	"connection_duration",
	"failed_logins",
}

// LabelColumn 标签列名
const LabelColumn = "label"

// 标签取值
const (
	LabelNormal = "normal"
	LabelAttack = "attack"
)

// Dataset 已加载的训练数据集，加载完成后只读
type Dataset struct {
	Features [][]float64 // 行优先，列顺序与FeatureColumns一致
	Labels   []int       // 0=normal, 1=attack
	Skipped  int         // 因空值或非法数值被跳过的行数
}

// Len 返回有效样本数
func (d *Dataset) Len() int {
	return len(d.Features)
}

// ClassCounts 返回各类别样本数，下标0为normal，1为attack
func (d *Dataset) ClassCounts() [2]int {
	var counts [2]int
	for _, y := range d.Labels {
		counts[y]++
	}
	return counts
}

// FeatureSummary 单个特征列的概要统计
type FeatureSummary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// DatasetStats 数据集分析结果
type DatasetStats struct {
	TotalSamples  int                       `json:"total_samples"`
	Features      int                       `json:"features"`
	NormalSamples int                       `json:"normal_samples"`
	AttackSamples int                       `json:"attack_samples"`
	NullValues    map[string]int            `json:"null_values"`
	FeatureStats  map[string]FeatureSummary `json:"feature_stats"`
}

// LoadCSV 加载训练数据集
// 校验必需列是否齐全，逐行解析特征和标签，含空值或非法数值的行被跳过并计数
func LoadCSV(path string) (*Dataset, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	colIndex, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	dataset := &Dataset{}
	for _, row := range rows {
		features, ok := parseFeatureRow(row, colIndex)
		if !ok {
			dataset.Skipped++
			continue
		}

		label, ok := parseLabel(row[colIndex[LabelColumn]])
		if !ok {
			dataset.Skipped++
			continue
		}

		dataset.Features = append(dataset.Features, features)
		dataset.Labels = append(dataset.Labels, label)
	}

	if dataset.Len() == 0 {
		return nil, fmt.Errorf("数据集 %s 中没有有效样本", path)
	}

	return dataset, nil
}

// Analyze 分析数据集，返回样本量、类别分布、空值统计和特征概要
func Analyze(path string) (*DatasetStats, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	colIndex, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	stats := &DatasetStats{
		TotalSamples: len(rows),
		Features:     len(FeatureColumns),
		NullValues:   make(map[string]int),
		FeatureStats: make(map[string]FeatureSummary),
	}

	values := make(map[string][]float64, len(FeatureColumns))
	for _, col := range FeatureColumns {
		stats.NullValues[col] = 0
	}
	stats.NullValues[LabelColumn] = 0

	for _, row := range rows {
		for _, col := range FeatureColumns {
			cell := strings.TrimSpace(row[colIndex[col]])
			v, err := cast.ToFloat64E(cell)
			if cell == "" || err != nil {
				stats.NullValues[col]++
				continue
			}
			values[col] = append(values[col], v)
		}

		labelCell := strings.TrimSpace(row[colIndex[LabelColumn]])
		switch label, ok := parseLabel(labelCell); {
		case labelCell == "":
			stats.NullValues[LabelColumn]++
		case ok && label == 0:
			stats.NormalSamples++
		case ok && label == 1:
			stats.AttackSamples++
		}
	}

	for _, col := range FeatureColumns {
		vs := values[col]
		if len(vs) == 0 {
			continue
		}
		summary := FeatureSummary{
			Min:  vs[0],
			Max:  vs[0],
			Mean: stat.Mean(vs, nil),
		}
		if len(vs) > 1 {
			summary.Std = stat.StdDev(vs, nil)
		}
		for _, v := range vs {
			if v < summary.Min {
				summary.Min = v
			}
			if v > summary.Max {
				summary.Max = v
			}
		}
		stats.FeatureStats[col] = summary
	}

	return stats, nil
}

// readCSV 读取CSV文件，返回数据行和表头
func readCSV(path string) ([][]string, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("打开数据集文件失败: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("解析CSV失败: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("数据集为空或缺少数据行")
	}

	return records[1:], records[0], nil
}

// resolveColumns 校验必需列并返回列名到下标的映射
func resolveColumns(header []string) (map[string]int, error) {
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.TrimSpace(strings.ToLower(name))] = i
	}

	var missing []string
	for _, col := range append(append([]string{}, FeatureColumns...), LabelColumn) {
		if _, ok := colIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("数据集缺少必需列: %s", strings.Join(missing, ", "))
	}

	return colIndex, nil
}

// parseFeatureRow 解析一行特征，任何一列为空或非数值则整行无效
func parseFeatureRow(row []string, colIndex map[string]int) ([]float64, bool) {
	features := make([]float64, len(FeatureColumns))
	for i, col := range FeatureColumns {
		idx := colIndex[col]
		if idx >= len(row) {
			return nil, false
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			return nil, false
		}
		v, err := cast.ToFloat64E(cell)
		if err != nil {
			return nil, false
		}
		features[i] = v
	}
	return features, true
}

// parseLabel 解析标签，normal=0、attack=1，其余视为非法
func parseLabel(cell string) (int, bool) {
	switch strings.TrimSpace(strings.ToLower(cell)) {
	case LabelNormal, "0":
		return 0, true
	case LabelAttack, "1":
		return 1, true
	default:
		return 0, false
	}
}
