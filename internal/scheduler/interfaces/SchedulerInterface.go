package interfaces

type SchedulerInterface interface {
	Init() error
	Stop()
	Restore() error
	Persist() error
}

// Sweeper drops idle throttle state and reports how many entries went.
type Sweeper interface {
	Sweep() int
}
