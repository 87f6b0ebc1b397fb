package messaging

import (
	"sort"
	"strings"
	"sync"
	"time"

	"wsd/internal/providers"
)

// Presence records which channels the service is currently in. It stands in
// for a chat connection: Join marks the channel joined and logs the event.
type Presence struct {
	mu     sync.RWMutex
	joined map[string]time.Time
	nick   string
	logger providers.Logger
	now    func() time.Time
}

func NewPresence(logger providers.Logger) *Presence {
	return &Presence{
		joined: make(map[string]time.Time),
		nick:   "Weather",
		logger: logger,
		now:    time.Now,
	}
}

func (p *Presence) Join(channel string) error {
	p.mu.Lock()
	p.joined[strings.ToLower(channel)] = p.now()
	p.mu.Unlock()
	p.logger.Infof(providers.TypeApp, "%s joined %s", p.nick, channel)
	return nil
}

func (p *Presence) IsJoined(channel string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.joined[strings.ToLower(channel)]
	return ok
}

// Joined lists the channels currently joined, sorted.
func (p *Presence) Joined() []string {
	p.mu.RLock()
	out := make([]string, 0, len(p.joined))
	for ch := range p.joined {
		out = append(out, ch)
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}
