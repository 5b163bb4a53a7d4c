// Package metrics собирает и публикует Prometheus-метрики моста синхронизации.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Исходы верификации и push-синхронизации (значения метки outcome).
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "token_invalid"
	OutcomeUnavailable = "upstream_unavailable"
	OutcomeError       = "error"
	OutcomeFailed      = "failed"
)

// Recorder — интерфейс записи метрик, используемый сервисами и middleware.
type Recorder interface {
	RecordVerification(outcome string)
	RecordProvisionedUser()
	RecordDegradedProvisioning()
	RecordPush(outcome string)
	RecordGatewayRejection(reason string)
}

// Collector реализует Recorder поверх Prometheus.
type Collector struct {
	verifications     *prometheus.CounterVec
	provisionedUsers  prometheus.Counter
	degradedProvision prometheus.Counter
	pushes            *prometheus.CounterVec
	gatewayRejections *prometheus.CounterVec
}

// NewCollector создает Collector и регистрирует метрики в указанном реестре.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asap_sync_verifications_total",
			Help: "Число верификаций sync-токена по исходам",
		}, []string{"outcome"}),
		provisionedUsers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asap_sync_provisioned_users_total",
			Help: "Число созданных при провижининге локальных пользователей",
		}),
		degradedProvision: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asap_sync_degraded_provisioning_total",
			Help: "Число провижинингов с placeholder-профилем (profile fetch недоступен)",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asap_sync_push_total",
			Help: "Число исходящих push-синхронизаций по исходам",
		}, []string{"outcome"}),
		gatewayRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asap_gateway_rejections_total",
			Help: "Число запросов, отклоненных security gateway, по причинам",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.verifications,
		c.provisionedUsers,
		c.degradedProvision,
		c.pushes,
		c.gatewayRejections,
	)

	return c
}

// RecordVerification записывает исход верификации sync-токена.
func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

// RecordProvisionedUser записывает создание локального пользователя.
func (c *Collector) RecordProvisionedUser() {
	c.provisionedUsers.Inc()
}

// RecordDegradedProvisioning записывает провижининг с placeholder-профилем.
func (c *Collector) RecordDegradedProvisioning() {
	c.degradedProvision.Inc()
}

// RecordPush записывает исход исходящей push-синхронизации.
func (c *Collector) RecordPush(outcome string) {
	c.pushes.WithLabelValues(outcome).Inc()
}

// RecordGatewayRejection записывает отклонение запроса gateway-middleware.
func (c *Collector) RecordGatewayRejection(reason string) {
	c.gatewayRejections.WithLabelValues(reason).Inc()
}

// Handler возвращает HTTP-обработчик для Prometheus-скрейпа.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
