/*
 * @module service/database/views/detection_views
 * @description 威胁检测相关视图定义，提供按天聚合的检测统计与模型排行视图
 * @architecture 数据库视图层 - 基于PostgreSQL视图实现数据聚合
 * @documentReference dev_docs/model.md
 * @stateFlow 检测数据落库 -> 视图聚合 -> 仪表盘查询
 * @rules 遵循PostgreSQL视图设计规范，视图为只读聚合，不做写入
 * @dependencies PostgreSQL JSONB支持, GORM模型定义
 * @refs service/models/detection.go, service/models/ml_model.go
 */

package views

var DetectionViews = map[string]string{
	// 按天聚合的检测统计视图 - 仪表盘趋势图数据源
	"detection_daily_stats": `
		DROP VIEW IF EXISTS detection_daily_stats;
		CREATE VIEW detection_daily_stats AS
		SELECT
			date_trunc('day', dr.timestamp) AS day,
			COUNT(*) AS total_count,
			COUNT(*) FILTER (WHERE dr.prediction = 'Threat') AS threat_count,
			COUNT(*) FILTER (WHERE dr.prediction = 'Normal') AS normal_count,
			COUNT(*) FILTER (WHERE dr.threat_level = 'Critical') AS critical_count,
			COUNT(*) FILTER (WHERE dr.threat_level = 'High') AS high_count,
			AVG(dr.confidence) AS avg_confidence
		FROM detection_records dr
		GROUP BY date_trunc('day', dr.timestamp)
		ORDER BY day DESC;
	`,

	// 未处置告警概览视图 - 含关联检测记录的关键字段
	"open_alerts_info": `
		DROP VIEW IF EXISTS open_alerts_info;
		CREATE VIEW open_alerts_info AS
		SELECT
			a.id,
			a.severity,
			a.status,
			a.assigned_to,
			a.created_at,
			dr.prediction,
			dr.confidence,
			dr.threat_level,
			dr.model_version,
			dr.source,
			dr.ip_address
		FROM alerts a
		JOIN detection_records dr ON dr.id = a.detection_id
		WHERE a.status IN ('Open', 'Acknowledged')
		ORDER BY a.created_at DESC;
	`,
}

var ModelViews = map[string]string{
	// 模型排行视图 - 按F1分数排序的模型概要
	"model_leaderboard": `
		DROP VIEW IF EXISTS model_leaderboard;
		CREATE VIEW model_leaderboard AS
		SELECT
			m.id,
			m.name,
			m.version,
			m.is_active,
			m.accuracy,
			m."precision",
			m.recall,
			m.f1_score,
			m.roc_auc,
			m.training_dataset_size,
			m.training_duration,
			m.created_at
		FROM ml_models m
		ORDER BY m.f1_score DESC NULLS LAST, m.created_at DESC;
	`,
}
