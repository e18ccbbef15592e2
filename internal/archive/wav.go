package archive

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/wavetap/wavetap/pkg/frame"
)

const archiveBitDepth = 16

// WAVArchive taps the conditioned stream into a mono 16-bit WAV file, for
// offline inspection of exactly what went over the wire. The archive is a
// side effect of the loop: an append failure degrades the tap, never the
// stream.
type WAVArchive struct {
	logger *slog.Logger

	fileHandle *os.File
	encoder    *wav.Encoder
	intBuf     *goaudio.IntBuffer

	shutdownOnce sync.Once
}

// NewWAVArchive creates (truncating) the archive file. sampleRate must be the
// rate of the frames actually sent, i.e. post rate-adaptation.
func NewWAVArchive(path string, sampleRate int, logger *slog.Logger) (*WAVArchive, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create archive file %q: %w", path, err)
	}

	encoder := wav.NewEncoder(f, sampleRate, archiveBitDepth, 1, 1)

	logger.Info("archiving conditioned stream", "path", path, "sampleRate", sampleRate)
	return &WAVArchive{
		logger:     logger,
		fileHandle: f,
		encoder:    encoder,
		intBuf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:           make([]int, frame.Size),
			SourceBitDepth: archiveBitDepth,
		},
	}, nil
}

// Append writes one conditioned frame to the archive. Samples are clamped to
// [-1, 1] before quantization; conditioning gain can push them past
// full scale.
func (a *WAVArchive) Append(f frame.PCMFrame) error {
	if len(f) > len(a.intBuf.Data) {
		a.intBuf.Data = make([]int, len(f))
	}
	data := a.intBuf.Data[:len(f)]
	for i, v := range f {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(v * 32767)
	}
	a.intBuf.Data = data

	if err := a.encoder.Write(a.intBuf); err != nil {
		return fmt.Errorf("archive write failed: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and releases the file handle.
func (a *WAVArchive) Close() error {
	var err error
	a.shutdownOnce.Do(func() {
		if encErr := a.encoder.Close(); encErr != nil {
			a.logger.Error("error finalizing archive", "err", encErr)
			err = encErr
		}
		if closeErr := a.fileHandle.Close(); closeErr != nil {
			if err == nil {
				err = closeErr
			}
		}
	})
	return err
}
