// Package metrics 同步引擎 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imsync"

// State 引擎状态快照，由引擎协程在每个任务后写入
type State struct {
	Channels      int
	Messages      int
	Trash         int
	Notifications int
	Pending       int
	TotalUnread   int
	Online        int
	Typing        int
}

// Metrics 指标集合，nil 接收者上的调用都是空操作
type Metrics struct {
	registry *prometheus.Registry

	channels      prometheus.Gauge
	messages      prometheus.Gauge
	trash         prometheus.Gauge
	notifications prometheus.Gauge
	pending       prometheus.Gauge
	unread        prometheus.Gauge
	online        prometheus.Gauge
	typing        prometheus.Gauge
	intakeDepth   prometheus.Gauge
	buffer        prometheus.GaugeFunc

	events      *prometheus.CounterVec
	noops       *prometheus.CounterVec
	evictions   prometheus.Counter
	sendResults *prometheus.CounterVec
}

// New 创建并注册指标
func New() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &Metrics{
		registry:      prometheus.NewRegistry(),
		channels:      gauge("channels", "Channels in the directory."),
		messages:      gauge("messages", "Messages held in the active store."),
		trash:         gauge("trash_entries", "Messages held in the trash."),
		notifications: gauge("notifications", "Queued notifications."),
		pending:       gauge("pending_events", "Events parked while waiting for their target message."),
		unread:        gauge("unread_total", "Global unread counter."),
		online:        gauge("online_users", "Users currently online."),
		typing:        gauge("typing_indicators", "Active typing indicators."),
		intakeDepth:   gauge("intake_depth", "Jobs waiting in the intake queue."),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Push events applied, by kind.",
		}, []string{"kind"}),
		noops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_noop_total",
			Help:      "Events that produced no state change, by reason.",
		}, []string{"reason"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trash_evictions_total",
			Help:      "Trash entries evicted after the retention window.",
		}),
		sendResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_results_total",
			Help:      "Outbound message sends, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.channels, m.messages, m.trash, m.notifications, m.pending,
		m.unread, m.online, m.typing, m.intakeDepth,
		m.events, m.noops, m.evictions, m.sendResults,
	)
	return m
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe 写入状态快照
func (m *Metrics) Observe(s State) {
	if m == nil {
		return
	}
	m.channels.Set(float64(s.Channels))
	m.messages.Set(float64(s.Messages))
	m.trash.Set(float64(s.Trash))
	m.notifications.Set(float64(s.Notifications))
	m.pending.Set(float64(s.Pending))
	m.unread.Set(float64(s.TotalUnread))
	m.online.Set(float64(s.Online))
	m.typing.Set(float64(s.Typing))
}

// IntakeDepth 写入队列深度
func (m *Metrics) IntakeDepth(n int) {
	if m == nil {
		return
	}
	m.intakeDepth.Set(float64(n))
}

// WatchBuffer 注册推送缓冲区使用率，采集时调用 usage
func (m *Metrics) WatchBuffer(usage func() (current, capacity int)) {
	if m == nil || m.buffer != nil {
		return
	}
	m.buffer = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscriber_buffer_usage",
		Help:      "Fraction of the push subscriber buffer in use.",
	}, func() float64 {
		current, capacity := usage()
		if capacity <= 0 {
			return 0
		}
		return float64(current) / float64(capacity)
	})
	m.registry.MustRegister(m.buffer)
}

// EventApplied 记录一个已应用的事件
func (m *Metrics) EventApplied(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// Noop 记录一个无变化的事件
func (m *Metrics) Noop(reason string) {
	if m == nil {
		return
	}
	m.noops.WithLabelValues(reason).Inc()
}

// Evicted 记录回收站剔除
func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}

// SendResult 记录发送结果
func (m *Metrics) SendResult(result string) {
	if m == nil {
		return
	}
	m.sendResults.WithLabelValues(result).Inc()
}
