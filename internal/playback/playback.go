package playback

import (
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Player проигрывает wav-клипы на локальном устройстве вывода.
type Player interface {
	Play(r io.ReadCloser, speed float64) error
}

// Default реализует Player поверх системного динамика.
type Default struct{ volumeDB float64 }

// New создаёт плеер без изменения громкости (0 dB).
func New() *Default { return &Default{volumeDB: 0} }

// NewWithVolume создаёт плеер с предустановленной громкостью в dB (отрицательные — тише).
func NewWithVolume(db float64) *Default { return &Default{volumeDB: db} }

// Play декодирует wav и блокируется до конца воспроизведения.
// speed — множитель темпа, 1.0 — без изменения.
func (d *Default) Play(r io.ReadCloser, speed float64) error {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return err
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return err
	}

	var src beep.Streamer = streamer
	if speed != 1.0 {
		src = beep.ResampleRatio(4, speed, streamer)
	}
	vol := &effects.Volume{
		Streamer: src,
		Base:     2,
		Volume:   d.volumeDB,
		Silent:   false,
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(vol, beep.Callback(func() { close(done) })))
	<-done

	return nil
}

var _ Player = (*Default)(nil)
