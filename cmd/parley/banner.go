package main

import (
	"fmt"

	"github.com/muesli/termenv"
)

// printBanner outputs the ASCII art banner shown on startup.
func printBanner() {
	p := termenv.ColorProfile()
	s1 := termenv.String(`  ____            _            `).Foreground(p.Color("#34d399"))
	s2 := termenv.String(` |  _ \ __ _ _ __| | ___ _   _ `).Foreground(p.Color("#2dd4bf"))
	s3 := termenv.String(` | |_) / _` + "`" + ` | '__| |/ _ \ | | |`).Foreground(p.Color("#22d3ee"))
	s4 := termenv.String(` |  __/ (_| | |  | |  __/ |_| |`).Foreground(p.Color("#38bdf8"))
	s5 := termenv.String(` |_|   \__,_|_|  |_|\___|\__, |`).Foreground(p.Color("#60a5fa"))
	s6 := termenv.String(`                         |___/ `).Foreground(p.Color("#818cf8"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(s6)
	fmt.Println()
}
