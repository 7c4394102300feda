package arena

import "testing"

// scriptedRand replays a fixed sequence of draws and fails the test if the
// code under test consumes more than were scripted.
type scriptedRand struct {
	t     *testing.T
	draws []float64
	pos   int
}

func newScriptedRand(t *testing.T, draws ...float64) *scriptedRand {
	t.Helper()
	return &scriptedRand{t: t, draws: draws}
}

func (s *scriptedRand) Float64() float64 {
	if s.pos >= len(s.draws) {
		s.t.Fatalf("unexpected draw #%d (only %d scripted)", s.pos+1, len(s.draws))
	}
	v := s.draws[s.pos]
	s.pos++
	return v
}

func (s *scriptedRand) consumed() int { return s.pos }

func bitcoinAgent(id string) AgentDescriptor {
	return AgentDescriptor{ID: id, Name: "Tyler Durden", Type: ArchetypeBitcoin}
}

func ethereumAgent(id string) AgentDescriptor {
	return AgentDescriptor{ID: id, Name: "Marla Singer", Type: ArchetypeEthereum}
}
