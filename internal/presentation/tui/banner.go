package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	"  _         _                                 _",
	" | |_ _  _ | |_ ___  _ _  __ _ _ _ __ _ _ __ | |_",
	" |  _| || ||  _/ _ \\| '_|/ _` | '_/ _` | '_ \\| ' \\",
	"  \\__|\\_,_| \\__\\___/|_|  \\__, |_| \\__,_| .__/|_||_|",
	"                         |___/         |_|",
}

var bannerColors = []string{"#34d399", "#2dd4bf", "#22d3ee", "#38bdf8", "#60a5fa"}

// PrintBanner writes the ASCII banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()

	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, termenv.String(line).Foreground(p.Color(bannerColors[i%len(bannerColors)])))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, termenv.String("  v"+v).Faint())
	}
	fmt.Fprintln(w)
}
