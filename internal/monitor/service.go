package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradecmd/internal/intent"
	"tradecmd/internal/metrics"
	"tradecmd/internal/store"
)

// Service 负责持久化解析事件，并为重启后的缓存预热提供历史数据。
// 写入失败只记日志，绝不影响解析主流程。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS resolution_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	tier TEXT NOT NULL,
	normalized_text TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resolution_events_type ON resolution_events(event_type);
CREATE INDEX IF NOT EXISTS idx_resolution_events_text ON resolution_events(normalized_text);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resolution_events (event_type, tier, normalized_text, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(event.Type), event.Tier, event.Text, string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordResolution 记录一次成功解析。
func (s *Service) RecordResolution(ctx context.Context, text string, tier metrics.Tier, it intent.Intent, confidence float64, latency time.Duration) {
	if err := s.Record(ctx, Event{
		Type:      EventResolution,
		Tier:      tierName(tier),
		Text:      text,
		Timestamp: time.Now().UTC(),
		Payload: ResolutionPayload{
			Intent:     it,
			Confidence: confidence,
			LatencyMs:  latency.Milliseconds(),
		},
	}); err != nil {
		s.logger.Warn("记录解析事件失败", zap.Error(err))
	}
}

// RecordError 记录一次失败解析。
func (s *Service) RecordError(ctx context.Context, text string, tier metrics.Tier, msg string, cause error) {
	payload := ErrorPayload{Message: msg}
	if cause != nil {
		payload.Error = cause.Error()
	}
	if err := s.Record(ctx, Event{
		Type:      EventError,
		Tier:      tierName(tier),
		Text:      text,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(err))
	}
}

// ListWarmSamples 返回最近经上游解析成功的指令样本（每条文本取最新
// 一次结果），供重启后预热缓存。
func (s *Service) ListWarmSamples(ctx context.Context, limit int) ([]WarmSample, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT normalized_text, payload, MAX(id)
FROM resolution_events
WHERE event_type = ? AND tier = ?
GROUP BY normalized_text
ORDER BY MAX(id) DESC
LIMIT ?`,
		string(EventResolution), string(metrics.TierExternal), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询预热样本失败: %w", err)
	}
	defer rows.Close()

	samples := make([]WarmSample, 0, limit)
	for rows.Next() {
		var (
			text    string
			payload string
			maxID   int64
		)
		if scanErr := rows.Scan(&text, &payload, &maxID); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析预热样本失败: %w", scanErr)
		}

		var p ResolutionPayload
		if unmarshalErr := json.Unmarshal([]byte(payload), &p); unmarshalErr != nil {
			s.logger.Warn("跳过无法解析的历史事件", zap.String("text", text), zap.Error(unmarshalErr))
			continue
		}
		if validateErr := p.Intent.Validate(); validateErr != nil {
			s.logger.Warn("跳过校验失败的历史意图", zap.String("text", text), zap.Error(validateErr))
			continue
		}

		samples = append(samples, WarmSample{Text: text, Intent: p.Intent})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取预热样本失败: %w", err)
	}

	return samples, nil
}
