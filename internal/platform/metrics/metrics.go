// Package metrics registra los contadores Prometheus del servicio.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InvitationsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindcare_invitations_issued_total",
		Help: "Invitaciones emitidas, por rol destino.",
	}, []string{"role"})

	InvitationsRedeemed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindcare_invitations_redeemed_total",
		Help: "Invitaciones canjeadas con éxito, por rol.",
	}, []string{"role"})

	ProvisioningFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindcare_provisioning_failures_total",
		Help: "Fallas de aprovisionamiento, por código de error.",
	}, []string{"code"})

	PatientTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindcare_patient_transfers_total",
		Help: "Transferencias de paciente completadas.",
	})

	OrphansReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindcare_orphan_principals_reconciled_total",
		Help: "Principals huérfanos eliminados por la barrida de reconciliación.",
	})
)
