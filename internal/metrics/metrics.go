package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	CommandTotal     *prometheus.CounterVec // labels: cmd, result=ok|device_error|protocol_error|timeout
	RetryTotal       prometheus.Counter     // 应答超时触发的重试次数
	DeviceErrorTotal *prometheus.CounterVec // labels: kind=busy|incomplete_frame|checksum|no_such_file|unknown
	NotifyTotal      *prometheus.CounterVec // labels: kind
	PlayingGauge     prometheus.Gauge       // 当前是否在播放（0/1）
	WebhookPushTotal *prometheus.CounterVec // labels: result=ok|retry|dead
	AnnounceTotal    *prometheus.CounterVec // labels: result=ok|error
	RateLimitTotal   *prometheus.CounterVec // labels: result=allowed|rejected
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		CommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dfplayer_command_total",
			Help: "DFPlayer commands issued by command byte and result.",
		}, []string{"cmd", "result"}),
		RetryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dfplayer_retry_total",
			Help: "Read-window retries while awaiting a reply.",
		}),
		DeviceErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dfplayer_device_error_total",
			Help: "Device-reported errors by kind.",
		}, []string{"kind"}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dfplayer_notification_total",
			Help: "Asynchronous device notifications by kind.",
		}, []string{"kind"}),
		PlayingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dfplayer_playing",
			Help: "Whether the module is currently playing (0/1).",
		}),
		WebhookPushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_push_total",
			Help: "Webhook event push attempts by result.",
		}, []string{"result"}),
		AnnounceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "announce_job_total",
			Help: "Announcement queue jobs by result.",
		}, []string{"result"}),
		RateLimitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_rate_limit_total",
			Help: "HTTP rate limiter decisions by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.CommandTotal, m.RetryTotal, m.DeviceErrorTotal, m.NotifyTotal, m.PlayingGauge, m.WebhookPushTotal, m.AnnounceTotal, m.RateLimitTotal)
	return m
}
