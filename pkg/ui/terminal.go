package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"ttharvest/pkg/models"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═══════════════════════════════════════════════════════════╗
    ║ ████████╗████████╗ ██╗  ██╗ █████╗ ██████╗ ██╗   ██╗███████╗ ║
    ║ ╚══██╔══╝╚══██╔══╝ ██║  ██║██╔══██╗██╔══██╗██║   ██║██╔════╝ ║
    ║    ██║      ██║    ███████║███████║██████╔╝██║   ██║█████╗   ║
    ║    ██║      ██║    ██╔══██║██╔══██║██╔══██╗╚██╗ ██╔╝██╔══╝   ║
    ║    ██║      ██║    ██║  ██║██║  ██║██║  ██║ ╚████╔╝ ███████╗ ║
    ║    ╚═╝      ╚═╝    ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝  ╚═══╝  ╚══════╝ ║
    ║             NEWEST-UPLOAD AUDIO HARVESTER                    ║
    ╚═══════════════════════════════════════════════════════════╝
`

var (
	quiet   atomic.Bool
	noColor atomic.Bool
	out     io.Writer = os.Stdout
)

// SetQuietMode suppresses all console output
func SetQuietMode(q bool) { quiet.Store(q) }

// IsQuietMode reports whether console output is suppressed
func IsQuietMode() bool { return quiet.Load() }

// SetNoColor disables ANSI colors
func SetNoColor(nc bool) { noColor.Store(nc) }

// SetOutput redirects console output
func SetOutput(w io.Writer) { out = w }

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if noColor.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

func printf(format string, args ...interface{}) {
	if quiet.Load() {
		return
	}
	fmt.Fprintf(out, format, args...)
}

func printLine(s string) {
	printf("%s\n", s)
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	printf("%s", Cyan(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		printLine(Red(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		printLine(Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	printLine(Green(msg))
}

// PrintInfo prints an info message in cyan
func PrintInfo(label string, value string) {
	printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		printLine(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		printLine(Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	printLine(Magenta(msg))
}

// PrintSummary prints the three outcome groups of a run
func PrintSummary(s *models.Summary) {
	printf("\n%s %s\n", Magenta("[RUN COMPLETE]"), Dim(s.RunID))
	printf("%s %s\n", Dim("duration:"), s.FinishedAt.Sub(s.StartedAt).Round(time.Second))

	printGroup("Succeeded", Green, s.Succeeded())
	printGroup("Skipped", Yellow, s.Skipped())
	printGroup("Failed", Red, s.Failed())
}

func printGroup(title string, color func(string) string, results []models.SourceResult) {
	printf("\n%s\n", color(fmt.Sprintf("%s (%d)", title, len(results))))
	if len(results) == 0 {
		printLine(Dim("  none"))
		return
	}
	for _, r := range results {
		name := r.DisplayName
		if name == "" || strings.EqualFold(name, r.Handle) {
			name = "@" + r.Handle
		} else {
			name = fmt.Sprintf("%s (@%s)", name, r.Handle)
		}
		printf("  %s %s\n", color("•"), name)
		if r.Reason != "" {
			printf("    %s\n", Dim(r.Reason))
		}
	}
}
