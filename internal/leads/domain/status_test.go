package domain

import "testing"

func TestCanTransitionCoversLifecycleGraph(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusNovo, StatusEmTriagem},
		{StatusEmTriagem, StatusAguardandoResposta},
		{StatusEmTriagem, StatusNaoElegivel},
		{StatusAguardandoResposta, StatusAgendado},
		{StatusAguardandoResposta, StatusNaoElegivel},
		{StatusAguardandoResposta, StatusSemResposta},
		{StatusSemResposta, StatusRecuperando},
		{StatusSemResposta, StatusAguardandoResposta},
		{StatusRecuperando, StatusAguardandoResposta},
		{StatusRecuperando, StatusInativo},
	}

	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%q, %q) = false, want true", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to string }{
		{StatusNovo, StatusAguardandoResposta},
		{StatusNovo, StatusAgendado},
		{StatusEmTriagem, StatusAgendado},
		{StatusAguardandoResposta, StatusRecuperando},
		{StatusAgendado, StatusAguardandoResposta},
		{StatusNaoElegivel, StatusEmTriagem},
		{StatusInativo, StatusRecuperando},
		{StatusRecuperando, StatusSemResposta},
	}

	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%q, %q) = true, want false", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for status := range knownStatuses {
		if !IsTerminal(status) {
			continue
		}
		for target := range knownStatuses {
			if CanTransition(status, target) {
				t.Errorf("terminal status %q has outgoing edge to %q", status, target)
			}
		}
	}
}

func TestAwaitsFollowUp(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusNovo, false},
		{StatusEmTriagem, false},
		{StatusAguardandoResposta, true},
		{StatusSemResposta, true},
		{StatusRecuperando, true},
		{StatusAgendado, false},
		{StatusNaoElegivel, false},
		{StatusInativo, false},
	}

	for _, tc := range tests {
		if got := AwaitsFollowUp(tc.status); got != tc.want {
			t.Errorf("AwaitsFollowUp(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestNextOnTimeout(t *testing.T) {
	tests := []struct {
		status string
		kind   TimeoutKind
		want   string
		ok     bool
	}{
		{StatusAguardandoResposta, TimeoutNoResponse, StatusSemResposta, true},
		{StatusSemResposta, TimeoutReengage, StatusRecuperando, true},
		{StatusRecuperando, TimeoutExpire, StatusInativo, true},
		// Stale events: the lead progressed before the timeout fired.
		{StatusAgendado, TimeoutNoResponse, "", false},
		{StatusAguardandoResposta, TimeoutReengage, "", false},
		{StatusSemResposta, TimeoutNoResponse, "", false},
		{StatusInativo, TimeoutExpire, "", false},
	}

	for _, tc := range tests {
		got, ok := NextOnTimeout(tc.status, tc.kind)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NextOnTimeout(%q, %q) = (%q, %v), want (%q, %v)",
				tc.status, tc.kind, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTimeoutKindFor(t *testing.T) {
	if kind, ok := TimeoutKindFor(StatusAguardandoResposta); !ok || kind != TimeoutNoResponse {
		t.Errorf("TimeoutKindFor(aguardando_resposta) = (%q, %v)", kind, ok)
	}
	if kind, ok := TimeoutKindFor(StatusSemResposta); !ok || kind != TimeoutReengage {
		t.Errorf("TimeoutKindFor(sem_resposta) = (%q, %v)", kind, ok)
	}
	if kind, ok := TimeoutKindFor(StatusRecuperando); !ok || kind != TimeoutExpire {
		t.Errorf("TimeoutKindFor(recuperando) = (%q, %v)", kind, ok)
	}
	if _, ok := TimeoutKindFor(StatusAgendado); ok {
		t.Error("TimeoutKindFor(agendado) should not be timeout-eligible")
	}
}

func TestLeadIsQualified(t *testing.T) {
	name := "Maria"
	region := "RS"
	interest := "franquia"
	availability := "manhã"
	empty := ""

	lead := &Lead{Name: &name, Region: &region, Interest: &interest, Availability: &availability}
	if !lead.IsQualified() {
		t.Error("lead with all fields should be qualified")
	}

	partial := &Lead{Name: &name, Region: &region}
	if partial.IsQualified() {
		t.Error("lead missing interest and availability should not be qualified")
	}

	blank := &Lead{Name: &name, Region: &region, Interest: &interest, Availability: &empty}
	if blank.IsQualified() {
		t.Error("empty string field should not count as collected")
	}
}
