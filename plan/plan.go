// Package plan describes which GATT service and characteristics a session
// subscribes to, and which channel each characteristic feeds.
package plan

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/maps"
)

var (
	ErrDuplicateCharacteristic = errors.New("duplicate characteristic")
	ErrEmptyPlan               = errors.New("plan has no characteristics")
	ErrInvalidEntry            = errors.New("invalid plan entry")
)

// Channel names the stream a characteristic feeds, e.g. X, Y or Z.
type Channel string

const (
	ChannelX Channel = "X"
	ChannelY Channel = "Y"
	ChannelZ Channel = "Z"
)

func (c Channel) String() string {
	return string(c)
}

const (
	DefaultService uint16 = 0x1101
	DefaultCharX   uint16 = 0x1102
	DefaultCharY   uint16 = 0x1103
	DefaultCharZ   uint16 = 0x1104
)

type Entry struct {
	UUID    UUID
	Channel Channel
}

func (e Entry) String() string {
	return fmt.Sprintf("%v=%v", e.Channel, e.UUID)
}

type Option func(*Plan)

// WithWriteCharacteristic selects the characteristic used by Send. It does not
// need to be part of the subscribed set.
func WithWriteCharacteristic(u UUID) Option {
	return func(p *Plan) {
		p.write = u
	}
}

// Plan is immutable once built and safe to share between goroutines.
type Plan struct {
	service UUID
	write   UUID
	chars   *orderedmap.OrderedMap[UUID, Channel]
}

// Build validates entries and returns a plan. Characteristic UUIDs must be
// unique; the write characteristic defaults to the first entry.
func Build(service UUID, entries []Entry, opts ...Option) (*Plan, error) {
	if service == "" {
		return nil, errors.Wrap(ErrInvalidUUID, "empty service uuid")
	}

	if len(entries) == 0 {
		return nil, ErrEmptyPlan
	}

	p := &Plan{
		service: service,
		chars:   orderedmap.New[UUID, Channel](),
	}

	for i, e := range entries {
		if e.UUID == "" || e.Channel == "" {
			return nil, errors.Wrapf(ErrInvalidEntry, "entry %d (%v)", i, e)
		}

		if existing, present := p.chars.Get(e.UUID); present {
			return nil, errors.Wrapf(ErrDuplicateCharacteristic,
				"%v is mapped to both %v and %v", e.UUID, existing, e.Channel)
		}

		p.chars.Set(e.UUID, e.Channel)
	}

	p.write = entries[0].UUID

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Default is the FlexTrack layout: service 1101 with X, Y and Z on 1102-1104.
func Default() *Plan {
	p, err := Build(UUIDFromShort(DefaultService), []Entry{
		{UUID: UUIDFromShort(DefaultCharX), Channel: ChannelX},
		{UUID: UUIDFromShort(DefaultCharY), Channel: ChannelY},
		{UUID: UUIDFromShort(DefaultCharZ), Channel: ChannelZ},
	})

	if err != nil {
		panic("default plan is invalid: " + err.Error())
	}

	return p
}

func (p *Plan) Service() UUID {
	return p.service
}

func (p *Plan) WriteCharacteristic() UUID {
	return p.write
}

// Lookup returns the channel fed by the characteristic u.
func (p *Plan) Lookup(u UUID) (Channel, bool) {
	return p.chars.Get(u)
}

// Entries returns the characteristics in plan order.
func (p *Plan) Entries() []Entry {
	out := make([]Entry, 0, p.chars.Len())

	for pair := p.chars.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Entry{UUID: pair.Key, Channel: pair.Value})
	}

	return out
}

// Channels returns the distinct channels fed by the plan, sorted by name.
func (p *Plan) Channels() []Channel {
	set := make(map[Channel]bool, p.chars.Len())

	for pair := p.chars.Oldest(); pair != nil; pair = pair.Next() {
		set[pair.Value] = true
	}

	out := maps.Keys(set)
	slices.Sort(out)

	return out
}

func (p *Plan) Len() int {
	return p.chars.Len()
}

func (p *Plan) String() string {
	entries := p.Entries()
	parts := make([]string, len(entries))

	for i, e := range entries {
		parts[i] = e.String()
	}

	return fmt.Sprintf("plan[service=%v, write=%v, %v]", p.service, p.write, strings.Join(parts, ","))
}

// ParseEntries parses the `x=1102,y=1103` notation used by the command line
// and config file. Channel names are upper-cased.
func ParseEntries(s string) ([]Entry, error) {
	var entries []Entry

	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)

		if field == "" {
			continue
		}

		parts := strings.SplitN(field, "=", 2)

		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, errors.Wrapf(ErrInvalidEntry, "%q: want channel=uuid", field)
		}

		u, err := ParseUUID(parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "channel %q", parts[0])
		}

		entries = append(entries, Entry{
			UUID:    u,
			Channel: Channel(strings.ToUpper(strings.TrimSpace(parts[0]))),
		})
	}

	return entries, nil
}
