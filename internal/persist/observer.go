package persist

import "time"

// Operation names reported to an Observer.
const (
	OpSave    = "save"
	OpClear   = "clear"
	OpRestore = "restore"
)

// Outcome describes one finished save, clear or restore.
type Outcome struct {
	Operation string
	Path      string
	Tables    int
	Failed    int
	Duration  time.Duration
	Err       error
}

// Observer is told about every finished operation and every failed table.
type Observer interface {
	ObserveOutcome(o Outcome)
	ObserveTableFailure(operation, table string)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(Outcome)             {}
func (nopObserver) ObserveTableFailure(string, string) {}

// Observers fans every event out to each of its members in order.
type Observers []Observer

func (fan Observers) ObserveOutcome(o Outcome) {
	for _, observer := range fan {
		observer.ObserveOutcome(o)
	}
}

func (fan Observers) ObserveTableFailure(operation, table string) {
	for _, observer := range fan {
		observer.ObserveTableFailure(operation, table)
	}
}
