package devicecatalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ErrNoSystemAudioDevice is returned by Select when no enumerated device
// matches any of the system-audio keywords.
//
// This is a normal outcome, not a fault: the caller is expected to present the
// input device list to the operator and re-invoke with an explicit index.
var ErrNoSystemAudioDevice = errors.New("no system audio capture device found")

// Descriptor is an immutable snapshot of one host audio device, taken once per
// run at enumeration time.
type Descriptor struct {
	// Host-assigned device index. The canonical way to reference the device
	// when asking a backend to open it.
	Index int

	// Human-readable device name, as reported by the host. Used for scoring.
	Name string

	MaxInputChannels  int
	MaxOutputChannels int
}

func (d Descriptor) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Index:             %d\n", d.Index)
	fmt.Fprintf(&sb, "Name:              %s\n", d.Name)
	fmt.Fprintf(&sb, "MaxInputChannels:  %d\n", d.MaxInputChannels)
	fmt.Fprintf(&sb, "MaxOutputChannels: %d\n", d.MaxOutputChannels)
	return sb.String()
}

// ScoredDevice ranks a Descriptor by how likely its name makes it a
// system-audio (loopback) capture device. Recomputed each run.
type ScoredDevice struct {
	Device Descriptor
	Score  int
}

// Enumerator is the slice of a capture backend the catalog needs: a snapshot
// of all host devices in host index order.
type Enumerator interface {
	Devices() ([]Descriptor, error)
}

// Catalog enumerates input-capable devices and ranks them by
// system-audio-likelihood.
type Catalog struct {
	logger *slog.Logger
	enum   Enumerator
}

func NewCatalog(enum Enumerator, logger *slog.Logger) *Catalog {
	return &Catalog{
		logger: logger,
		enum:   enum,
	}
}

// InputDevices returns every device with at least one input channel, in host
// index order. A device that cannot be enumerated is skipped by the backend,
// not surfaced here.
func (c *Catalog) InputDevices() ([]Descriptor, error) {
	devices, err := c.enum.Devices()
	if err != nil {
		return nil, fmt.Errorf("device enumeration failed: %w", err)
	}

	inputDevices := make([]Descriptor, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, d)
		}
	}
	return inputDevices, nil
}

// ScoreDevices ranks the given devices, dropping those with no keyword match.
// The result is sorted by descending score, ties broken by lower device index.
func (c *Catalog) ScoreDevices(devices []Descriptor) []ScoredDevice {
	scored := make([]ScoredDevice, 0, len(devices))
	for _, d := range devices {
		score := Score(d)
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredDevice{Device: d, Score: score})
	}

	// Input is already in ascending index order, so a stable sort on score
	// alone leaves ties ordered by lower index.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// Select returns the highest-scored input-capable device, or
// ErrNoSystemAudioDevice when nothing matched the keyword table.
func (c *Catalog) Select() (Descriptor, error) {
	inputDevices, err := c.InputDevices()
	if err != nil {
		return Descriptor{}, err
	}

	scored := c.ScoreDevices(inputDevices)
	if len(scored) == 0 {
		return Descriptor{}, ErrNoSystemAudioDevice
	}

	best := scored[0]
	c.logger.Info(
		"selected system audio device",
		"device", best.Device.Name,
		"index", best.Device.Index,
		"score", best.Score,
	)
	return best.Device, nil
}

// SelectIndex returns the input-capable device with the given host index, for
// the re-invocation path after Select reports no candidate.
func (c *Catalog) SelectIndex(index int) (Descriptor, error) {
	inputDevices, err := c.InputDevices()
	if err != nil {
		return Descriptor{}, err
	}

	for _, d := range inputDevices {
		if d.Index == index {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("no input-capable device with index %d", index)
}

// Score assigns a system-audio-likelihood score to a device by
// case-insensitive keyword match against its name. Highest score first:
//
//	stereo mix              100
//	what u hear              90
//	loopback                 85
//	wave out mix             80
//	speakers (with "input")  70
//	realtek + stereo|mix     60
//	sound mapper             50
//
// A device matching nothing returns 0 and is never auto-selected.
func Score(d Descriptor) int {
	name := strings.ToLower(d.Name)
	switch {
	case strings.Contains(name, "stereo mix"):
		return 100
	case strings.Contains(name, "what u hear"):
		return 90
	case strings.Contains(name, "loopback"):
		return 85
	case strings.Contains(name, "wave out mix"):
		return 80
	case strings.Contains(name, "speakers") && strings.Contains(name, "input"):
		return 70
	case strings.Contains(name, "realtek") && (strings.Contains(name, "stereo") || strings.Contains(name, "mix")):
		return 60
	case strings.Contains(name, "sound mapper"):
		return 50
	}
	return 0
}
