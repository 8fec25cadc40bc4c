package game

// Gateway receives table state from the engine. Implementations are called
// while the engine holds its lock and must not block or call back into it.
type Gateway interface {
	PublishSnapshot(snapshot RoundSnapshot)
	PublishTimer(seconds int)
	PublishLedger(participants []Participant)
}

// RoundRecorder is notified once per settled round.
type RoundRecorder interface {
	RecordRound(summary RoundSummary)
}

// Gateways fans every publish out to each member in order.
type Gateways []Gateway

func (g Gateways) PublishSnapshot(snapshot RoundSnapshot) {
	for _, gw := range g {
		gw.PublishSnapshot(snapshot.clone())
	}
}

func (g Gateways) PublishTimer(seconds int) {
	for _, gw := range g {
		gw.PublishTimer(seconds)
	}
}

func (g Gateways) PublishLedger(participants []Participant) {
	for _, gw := range g {
		gw.PublishLedger(participants)
	}
}

type nopGateway struct{}

func (nopGateway) PublishSnapshot(RoundSnapshot) {}
func (nopGateway) PublishTimer(int)              {}
func (nopGateway) PublishLedger([]Participant)   {}
