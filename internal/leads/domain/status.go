// Package domain provides core business rules for the leads bounded context.
package domain

const (
	// StatusNovo is the initial status for a freshly created lead.
	StatusNovo = "novo"
	// StatusEmTriagem means the first inbound message is being qualified.
	StatusEmTriagem = "em_triagem"
	// StatusAguardandoResposta means a reply was sent and the lead owes an answer.
	StatusAguardandoResposta = "aguardando_resposta"
	// StatusAgendado is terminal: a visit was booked.
	StatusAgendado = "agendado"
	// StatusNaoElegivel is terminal: the lead's region is not served.
	StatusNaoElegivel = "nao_elegivel"
	// StatusSemResposta means the no-response window elapsed without a reply.
	StatusSemResposta = "sem_resposta"
	// StatusRecuperando means a re-engagement attempt is in flight.
	StatusRecuperando = "recuperando"
	// StatusInativo is terminal: re-engagement gave up.
	StatusInativo = "inativo"
)

// transitions is the closed edge set of the lifecycle graph. A status not
// present as a key is terminal.
var transitions = map[string]map[string]bool{
	StatusNovo: {
		StatusEmTriagem: true,
	},
	StatusEmTriagem: {
		StatusAguardandoResposta: true,
		StatusNaoElegivel:        true,
	},
	StatusAguardandoResposta: {
		StatusAgendado:    true,
		StatusNaoElegivel: true,
		StatusSemResposta: true,
	},
	StatusSemResposta: {
		StatusRecuperando:        true,
		StatusAguardandoResposta: true, // a real reply cancels the breach
	},
	StatusRecuperando: {
		StatusAguardandoResposta: true,
		StatusInativo:            true,
	},
}

var terminalStatuses = map[string]bool{
	StatusAgendado:    true,
	StatusNaoElegivel: true,
	StatusInativo:     true,
}

var knownStatuses = map[string]struct{}{
	StatusNovo:               {},
	StatusEmTriagem:          {},
	StatusAguardandoResposta: {},
	StatusAgendado:           {},
	StatusNaoElegivel:        {},
	StatusSemResposta:        {},
	StatusRecuperando:        {},
	StatusInativo:            {},
}

// IsKnownStatus reports whether the value is a recognized lifecycle status.
func IsKnownStatus(status string) bool {
	_, ok := knownStatuses[status]
	return ok
}

// CanTransition reports whether the edge from → to exists in the lifecycle graph.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// IsTerminal returns true if no further transition can leave the status.
// Terminal leads must never be touched by the follow-up scanner.
func IsTerminal(status string) bool {
	return terminalStatuses[status]
}

// AwaitsFollowUp reports whether the status participates in time-based
// follow-up scanning. next_follow_up_at must be null outside these statuses.
func AwaitsFollowUp(status string) bool {
	switch status {
	case StatusAguardandoResposta, StatusSemResposta, StatusRecuperando:
		return true
	}
	return false
}

// TimeoutKind identifies which SLA breach a synthetic scheduler event carries.
type TimeoutKind string

const (
	// TimeoutNoResponse fires when the no-response window elapses.
	TimeoutNoResponse TimeoutKind = "no_response"
	// TimeoutReengage fires when a re-engagement attempt is due.
	TimeoutReengage TimeoutKind = "reengage"
	// TimeoutExpire fires when the attempt ceiling or the absolute age ceiling is reached.
	TimeoutExpire TimeoutKind = "expire"
)

// TimeoutKindFor derives the synthetic event kind for a lead whose
// next_follow_up_at is due. Returns false when the status is not
// timeout-eligible.
func TimeoutKindFor(status string) (TimeoutKind, bool) {
	switch status {
	case StatusAguardandoResposta:
		return TimeoutNoResponse, true
	case StatusSemResposta:
		return TimeoutReengage, true
	case StatusRecuperando:
		return TimeoutExpire, true
	}
	return "", false
}

// NextOnTimeout maps (status, kind) to the target status of a
// timeout-triggered transition. Returns false when the pair is not a valid
// edge, which callers treat as a stale event and drop.
func NextOnTimeout(status string, kind TimeoutKind) (string, bool) {
	switch {
	case status == StatusAguardandoResposta && kind == TimeoutNoResponse:
		return StatusSemResposta, true
	case status == StatusSemResposta && kind == TimeoutReengage:
		return StatusRecuperando, true
	case status == StatusRecuperando && kind == TimeoutExpire:
		return StatusInativo, true
	}
	return "", false
}
