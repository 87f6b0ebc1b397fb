package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"wsd/internal/providers"
	"wsd/internal/structures"
)

var (
	ErrPersistence    = errors.New("failed to persist channel registry")
	ErrInvalidChannel = errors.New("invalid channel name")
	ErrInvalidRequest = errors.New("invalid requester")
)

// Joiner is the presence layer the registry drives.
type Joiner interface {
	Join(channel string) error
	IsJoined(channel string) bool
}

type ChannelEntry struct {
	Channel   string `json:"channel"`
	Requester string `json:"requester"`
}

type JoinResult struct {
	NewlyTracked bool
}

type RegistryInterface interface {
	Join(channel, requester string) (JoinResult, error)
	Cycle() (int, error)
	Load() error
	Persist() error
	Channels() []ChannelEntry
	Get(channel string) (ChannelEntry, bool)
	Len() int
}

// Registry tracks the channels the service should stay in, keyed by the
// lower-cased channel name, and mirrors them to a record file.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]ChannelEntry

	// fileMu serializes rewrites so an older snapshot never lands last.
	fileMu sync.Mutex
	files  *FileManager

	joiner Joiner
	logger providers.Logger
}

func NewRegistry(conf *structures.Config, joiner Joiner, logger providers.Logger) *Registry {
	return &Registry{
		channels: make(map[string]ChannelEntry),
		files:    NewFileManager(conf.Persistence.FilePath),
		joiner:   joiner,
		logger:   logger,
	}
}

// ValidateChannel accepts names starting with # or & that contain no
// whitespace, NUL or comma.
func ValidateChannel(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidChannel)
	}
	if name[0] != '#' && name[0] != '&' {
		return fmt.Errorf("%w: %q must start with # or &", ErrInvalidChannel, name)
	}
	if len(name) > MaxFieldLength-1 {
		return fmt.Errorf("%w: too long", ErrInvalidChannel)
	}
	if strings.ContainsAny(name, " \t\r\n\x00,\a") {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}
	return nil
}

func key(channel string) string {
	return strings.ToLower(channel)
}

// Join tracks channel on behalf of requester. A channel already tracked keeps
// its original requester and is only re-joined when the service is absent.
// If persisting a new entry fails the entry stays in memory and the returned
// error wraps ErrPersistence.
func (r *Registry) Join(channel, requester string) (JoinResult, error) {
	if err := ValidateChannel(channel); err != nil {
		return JoinResult{}, err
	}
	if len(requester) > MaxFieldLength-1 || strings.IndexByte(requester, 0) >= 0 {
		return JoinResult{}, ErrInvalidRequest
	}

	r.mu.Lock()
	_, tracked := r.channels[key(channel)]
	if !tracked {
		r.channels[key(channel)] = ChannelEntry{Channel: channel, Requester: requester}
	}
	r.mu.Unlock()

	if tracked {
		if !r.joiner.IsJoined(channel) {
			if err := r.joiner.Join(channel); err != nil {
				return JoinResult{}, fmt.Errorf("join %s: %w", channel, err)
			}
		}
		return JoinResult{NewlyTracked: false}, nil
	}

	r.logger.Infof(providers.TypeApp, "Tracking channel %s requested by %s", channel, requester)

	persistErr := r.Persist()
	if persistErr != nil {
		r.logger.Errorf(providers.TypeApp, "Channel %s kept in memory only: %v", channel, persistErr)
	}

	if err := r.joiner.Join(channel); err != nil {
		return JoinResult{NewlyTracked: true}, errors.Join(fmt.Errorf("join %s: %w", channel, err), persistErr)
	}
	return JoinResult{NewlyTracked: true}, persistErr
}

// Cycle joins every tracked channel, then rewrites the file. Join failures
// are logged and do not stop the cycle.
func (r *Registry) Cycle() (int, error) {
	entries := r.Channels()
	for _, e := range entries {
		if err := r.joiner.Join(e.Channel); err != nil {
			r.logger.Warnf(providers.TypeApp, "Cycle: join %s failed: %v", e.Channel, err)
		}
	}
	if err := r.Persist(); err != nil {
		return len(entries), err
	}
	return len(entries), nil
}

// Load replaces the in-memory table with the file contents. A missing file
// yields an empty registry and creates the file. A record cut short at the
// end of the file is dropped.
func (r *Registry) Load() error {
	data, err := r.files.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.mu.Lock()
			r.channels = make(map[string]ChannelEntry)
			r.mu.Unlock()
			r.logger.Infof(providers.TypeApp, "Channel registry %s not found, creating it", r.files.Path())
			return r.Persist()
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	loaded := make(map[string]ChannelEntry)
	reader := bytes.NewReader(data)
	var loadErr error
	for {
		e, err := readEntry(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, errTruncated) {
			r.logger.Warnf(providers.TypeApp, "Channel registry %s ends with a partial record, dropping it", r.files.Path())
			break
		}
		if err != nil {
			r.logger.Errorf(providers.TypeApp, "Channel registry %s: %v", r.files.Path(), err)
			loadErr = err
			break
		}
		loaded[key(e.Channel)] = e
	}

	r.mu.Lock()
	r.channels = loaded
	r.mu.Unlock()

	r.logger.Infof(providers.TypeApp, "Loaded %d channels from %s", len(loaded), r.files.Path())
	return loadErr
}

// Persist rewrites the whole file from the in-memory table, sorted by key.
func (r *Registry) Persist() error {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	var buf bytes.Buffer
	for _, e := range r.Channels() {
		if err := writeEntry(&buf, e); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}
	if err := r.files.Save(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Channels returns a snapshot sorted by lower-cased channel name.
func (r *Registry) Channels() []ChannelEntry {
	r.mu.RLock()
	keys := make([]string, 0, len(r.channels))
	for k := range r.channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ChannelEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.channels[k])
	}
	r.mu.RUnlock()
	return out
}

func (r *Registry) Get(channel string) (ChannelEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[key(channel)]
	return e, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
