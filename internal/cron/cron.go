// Package cron schedules the periodic cache jobs: the playlist warm-up and
// the sweep of expired in-memory entries.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/listen-stream/playlist-screen/pkg/config"
	"github.com/listen-stream/playlist-screen/pkg/logger"
)

const defaultJobTimeout = 5 * time.Minute

// WarmUper 预热歌单缓存，PlaylistService 实现了该接口
type WarmUper interface {
	WarmUp(ctx context.Context) error
}

// Cleaner 清理过期的 L1 条目，cache.Layer 实现了该接口
type Cleaner interface {
	CleanExpired() int
}

// Option configures the manager.
type Option func(*Manager)

// WithWarmUpCounter counts warm-up runs by result.
func WithWarmUpCounter(c metric.Int64Counter) Option {
	return func(m *Manager) { m.warmups = c }
}

// WithJobTimeout bounds a single warm-up run.
func WithJobTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Manager 定时任务管理器
type Manager struct {
	cron    *cron.Cron
	warmer  WarmUper
	cleaner Cleaner
	cfg     config.CacheConfig
	timeout time.Duration
	warmups metric.Int64Counter
	log     logger.Logger

	mu      sync.Mutex
	started bool
}

// NewManager 创建定时任务管理器
func NewManager(warmer WarmUper, cleaner Cleaner, cfg config.CacheConfig, log logger.Logger, opts ...Option) *Manager {
	log = log.WithFields(logger.String("component", "cron"))
	adapter := cronLogger{log: log}

	m := &Manager{
		cron: cron.New(
			cron.WithLocation(time.Local),
			cron.WithLogger(adapter),
			// 跳过仍在运行的任务，并恢复任务中的 panic
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		warmer:  warmer,
		cleaner: cleaner,
		cfg:     cfg,
		timeout: defaultJobTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 注册并启动定时任务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	if m.cfg.WarmupCron != "" {
		if _, err := m.cron.AddFunc(m.cfg.WarmupCron, m.runWarmUp); err != nil {
			return fmt.Errorf("schedule warm up %q: %w", m.cfg.WarmupCron, err)
		}
	}

	if m.cfg.CleanupInterval > 0 {
		spec := "@every " + m.cfg.CleanupInterval.String()
		if _, err := m.cron.AddFunc(spec, m.runCleanup); err != nil {
			return fmt.Errorf("schedule cleanup %q: %w", spec, err)
		}
	}

	m.cron.Start()
	m.started = true
	m.log.Info("Cron manager started",
		logger.String("warmup_cron", m.cfg.WarmupCron),
		logger.Duration("cleanup_interval", m.cfg.CleanupInterval),
		logger.Int("jobs", len(m.cron.Entries())),
	)
	return nil
}

// Stop 停止调度并等待运行中的任务结束，ctx 超时则提前返回
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false

	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.log.Info("Cron manager stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// RunWarmUpNow 立即执行一次预热（启动时或手动触发）
func (m *Manager) RunWarmUpNow(ctx context.Context) error {
	start := time.Now()
	err := m.warmer.WarmUp(ctx)
	m.record(ctx, err)

	if err != nil {
		m.log.WithContext(ctx).Error("Warm up failed",
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return err
	}
	m.log.WithContext(ctx).Info("Warm up completed", logger.Duration("elapsed", time.Since(start)))
	return nil
}

// NextWarmUp 下一次计划预热的时间，未调度时为零值
func (m *Manager) NextWarmUp() time.Time {
	var next time.Time
	for _, e := range m.cron.Entries() {
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

func (m *Manager) runWarmUp() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	_ = m.RunWarmUpNow(ctx)
}

func (m *Manager) runCleanup() {
	if n := m.cleaner.CleanExpired(); n > 0 {
		m.log.Debug("Cleaned expired cache entries", logger.Int("count", n))
	}
}

func (m *Manager) record(ctx context.Context, err error) {
	if m.warmups == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.warmups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// cronLogger 把 robfig/cron 的日志接到 logger.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)...).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(kvFields(keysAndValues), logger.Error(err))
	l.log.WithFields(fields...).Error(msg)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
