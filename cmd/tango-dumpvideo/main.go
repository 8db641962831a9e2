// Command tango-dumpvideo fast-forwards a .tangoreplay file against a
// registered core.Core implementation and pipes the decoded video/audio to
// an external ffmpeg process. No concrete Core ships in this tree; link one
// in with a blank import and select it with -core.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/murkland/tango/internal/battle"
	"github.com/murkland/tango/internal/core"
	"github.com/murkland/tango/internal/replay"
)

func main() {
	coreName := flag.String("core", "", "registered core.Core implementation to use")
	gameName := flag.String("game", "", "registered battle.Game implementation to use")
	outputPath := flag.String("output-path", "out.mp4", "ffmpeg output file path")
	audioArgs := flag.String("a", "-f s16le -ar 48000 -ac 2", "ffmpeg input args for the raw audio pipe")
	videoArgs := flag.String("v", "-f rawvideo -pix_fmt rgba -s 240x160 -r 60", "ffmpeg input args for the raw video pipe")
	muxArgs := flag.String("m", "-c:v libx264 -c:a aac", "ffmpeg output muxing args")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tango-dumpvideo -core <name> -game <name> [flags] <replay-path>")
		os.Exit(2)
	}
	if *coreName == "" {
		log.Fatal("[tango-dumpvideo] -core is required (no default Core implementation is linked in)")
	}
	if *gameName == "" {
		log.Fatal("[tango-dumpvideo] -game is required (no default Game implementation is linked in)")
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("[tango-dumpvideo] read replay: %v", err)
	}
	r, err := replay.Decode(data)
	if err != nil {
		log.Fatalf("[tango-dumpvideo] decode replay: %v", err)
	}

	c, err := core.Open(*coreName, "")
	if err != nil {
		log.Fatalf("[tango-dumpvideo] %v", err)
	}
	if err := c.LoadState(r.SaveState); err != nil {
		log.Fatalf("[tango-dumpvideo] load state: %v", err)
	}

	g, err := battle.OpenGame(*gameName)
	if err != nil {
		log.Fatalf("[tango-dumpvideo] %v", err)
	}

	videoPipePath, audioPipePath, cleanup := makeFIFOs()
	defer cleanup()

	args := []string{}
	args = append(args, splitArgs(*videoArgs)...)
	args = append(args, "-i", videoPipePath)
	args = append(args, splitArgs(*audioArgs)...)
	args = append(args, "-i", audioPipePath)
	args = append(args, splitArgs(*muxArgs)...)
	args = append(args, "-y", *outputPath)

	cmd := exec.Command("ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		log.Fatalf("[tango-dumpvideo] start ffmpeg: %v", err)
	}

	if err := dumpFrames(c, g, r, videoPipePath, audioPipePath); err != nil {
		log.Fatalf("[tango-dumpvideo] dump frames: %v", err)
	}

	if err := cmd.Wait(); err != nil {
		log.Fatalf("[tango-dumpvideo] ffmpeg: %v", err)
	}
	log.Printf("[tango-dumpvideo] wrote %s", *outputPath)
}

func splitArgs(s string) []string {
	return strings.Fields(s)
}
