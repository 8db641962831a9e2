package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/murkland/tango/internal/battle"
	"github.com/murkland/tango/internal/core"
	"github.com/murkland/tango/internal/emu"
	"github.com/murkland/tango/internal/replay"
)

// makeFIFOs creates a pair of named pipes ffmpeg can open as separate -i
// inputs, named with a uuid so concurrent runs never collide.
func makeFIFOs() (videoPath, audioPath string, cleanup func()) {
	dir := os.TempDir()
	id := uuid.NewString()
	videoPath = filepath.Join(dir, fmt.Sprintf("tango-dumpvideo-%s.video.fifo", id))
	audioPath = filepath.Join(dir, fmt.Sprintf("tango-dumpvideo-%s.audio.fifo", id))

	if err := syscall.Mkfifo(videoPath, 0o600); err != nil {
		panic(fmt.Sprintf("tango-dumpvideo: mkfifo video: %v", err))
	}
	if err := syscall.Mkfifo(audioPath, 0o600); err != nil {
		panic(fmt.Sprintf("tango-dumpvideo: mkfifo audio: %v", err))
	}

	return videoPath, audioPath, func() {
		os.Remove(videoPath)
		os.Remove(audioPath)
	}
}

// dumpFrames replays r against c frame-by-frame, writing raw video frames
// and resampled audio to the two FIFOs. Both opens block until ffmpeg opens
// its corresponding read end, so they run concurrently with the writer. Each
// pair is applied to c through g exactly as the live trap-driven Battle
// would (see internal/fastforward), so the dumped video/audio actually
// reflects the recorded match rather than an un-driven idle replay.
func dumpFrames(c core.Core, g battle.Game, r replay.Replay, videoPath, audioPath string) error {
	audioSamples := make(chan [2][]int16, 4)
	videoCh := make(chan error, 1)
	audioCh := make(chan error, 1)

	localIdx := int(r.LocalPlayerIndex)
	remoteIdx := 1 - localIdx

	go func() {
		f, err := os.OpenFile(videoPath, os.O_WRONLY, 0)
		if err != nil {
			videoCh <- fmt.Errorf("open video fifo: %w", err)
			close(audioSamples)
			return
		}
		defer f.Close()
		defer close(audioSamples)

		resampler := emu.NewResampler(c, 48000)

		for _, pair := range r.Pairs {
			g.SetPlayerInputState(c, localIdx, pair.Local.Joyflags, pair.Local.CustomScreenState)
			if pair.Local.Turn != nil {
				g.SetPlayerMarshaledBattleState(c, localIdx, pair.Local.Turn)
			}
			g.SetPlayerInputState(c, remoteIdx, pair.Remote.Joyflags, pair.Remote.CustomScreenState)
			if pair.Remote.Turn != nil {
				g.SetPlayerMarshaledBattleState(c, remoteIdx, pair.Remote.Turn)
			}

			for {
				c.Step()
				if c.FrameComplete() {
					break
				}
			}

			if _, err := f.Write(c.VideoBuffer()); err != nil {
				videoCh <- fmt.Errorf("write video frame: %w", err)
				return
			}

			left := make([]int16, 800)
			right := make([]int16, 800)
			resampler.Pull(left, right, 60.0)
			audioSamples <- [2][]int16{left, right}
		}
		videoCh <- nil
	}()

	go func() {
		f, err := os.OpenFile(audioPath, os.O_WRONLY, 0)
		if err != nil {
			audioCh <- fmt.Errorf("open audio fifo: %w", err)
			return
		}
		defer f.Close()

		buf := make([]byte, 0, 4*800)
		for pair := range audioSamples {
			buf = buf[:0]
			for i := range pair[0] {
				buf = append(buf, byte(pair[0][i]), byte(pair[0][i]>>8), byte(pair[1][i]), byte(pair[1][i]>>8))
			}
			if _, err := f.Write(buf); err != nil {
				audioCh <- fmt.Errorf("write audio samples: %w", err)
				return
			}
		}
		audioCh <- nil
	}()

	if err := <-videoCh; err != nil {
		return err
	}
	return <-audioCh
}
