package commands

import (
	"fmt"

	"github.com/modelry/modelry/sym"
	"github.com/modelry/modelry/version"
)

// printStartupBanner prints the user-friendly startup message.
func printStartupBanner(verbosity int, dbPath string, port int) {
	cyan := "\033[36m"
	green := "\033[32m"
	yellow := "\033[33m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	info := version.Get()

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf("   ╔═══════════════════════════════════════════════╗\n")
	fmt.Printf("   ║                                               ║\n")
	fmt.Printf("   ║             M O D E L R Y                     ║\n")
	fmt.Printf("   ║                                               ║\n")
	fmt.Printf("   ║   %s Canvas   %s Rules   %s Impact              ║\n", sym.Canvas, sym.Rule, sym.Impact)
	fmt.Printf("   ║                                               ║\n")
	fmt.Printf("   ╚═══════════════════════════════════════════════╝%s\n\n", reset)

	fmt.Printf("%s%s┌─ Modelry Info ──────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, info.Version, info.Short())
	fmt.Printf("%s│%s Built:     %s\n", green, reset, info.BuildTime)
	fmt.Printf("%s│%s Port:      %d\n", green, reset, port)
	if dbPath != "" {
		fmt.Printf("%s│%s Database:  %s\n", green, reset, dbPath)
	}
	fmt.Printf("%s│%s Verbosity: %d\n", green, reset, verbosity)
	fmt.Printf("%s└─────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s%s✨ API at http://localhost:%d/api, events at /ws%s\n", yellow, bold, port, reset)
	fmt.Printf("%s💡 Press Ctrl+C to stop%s\n\n", blue, reset)
}
