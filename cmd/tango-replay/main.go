// Command tango-replay inspects .tangoreplay files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/murkland/tango/internal/replay"
)

func main() {
	dump := flag.Bool("dump", false, "print every decoded input pair")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tango-replay [--dump] <path>")
		os.Exit(2)
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("[tango-replay] read %s: %v", path, err)
	}

	r, err := replay.Decode(data)
	if err != nil {
		log.Fatalf("[tango-replay] decode %s: %v", path, err)
	}

	fmt.Printf("rom_title=%q rom_crc32=%08x local_player_index=%d save_state_bytes=%d pairs=%d\n",
		r.ROMTitle, r.ROMCRC32, r.LocalPlayerIndex, len(r.SaveState), len(r.Pairs))

	if !*dump {
		return
	}
	for i, pair := range r.Pairs {
		fmt.Printf("%6d local={tick=%d joyflags=%04x css=%d turn=%v} remote={tick=%d joyflags=%04x css=%d turn=%v}\n",
			i,
			pair.Local.LocalTick, pair.Local.Joyflags, pair.Local.CustomScreenState, pair.Local.Turn != nil,
			pair.Remote.LocalTick, pair.Remote.Joyflags, pair.Remote.CustomScreenState, pair.Remote.Turn != nil,
		)
	}
}
