package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ewreturns/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const dateLayout = "2006-01-02"

// RunHeader describes a command invocation for the console header
type RunHeader struct {
	Title       string
	Tag         string
	Start       time.Time
	End         time.Time
	Instruments string
	Provider    string
	Capital     decimal.Decimal  // zero hides the line
	Modes       []contracts.Mode // empty hides the line
}

// PrintRunHeader prints a formatted header for a run-like command
func PrintRunHeader(h RunHeader) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", h.Title)
	PrintSeparator()

	PrintKeyValue("Window", fmt.Sprintf("%s ~ %s", h.Start.Format(dateLayout), h.End.Format(dateLayout)), 11)
	if h.Instruments != "" {
		PrintKeyValue("Instruments", h.Instruments, 11)
	}
	if h.Provider != "" {
		PrintKeyValue("Provider", h.Provider, 11)
	}
	if !h.Capital.IsZero() {
		PrintKeyValue("Capital", h.Capital.StringFixed(2), 11)
	}
	if len(h.Modes) > 0 {
		names := make([]string, len(h.Modes))
		for i, m := range h.Modes {
			names[i] = string(m)
		}
		PrintKeyValue("Modes", strings.Join(names, ", "), 11)
	}

	PrintSeparator()
	fmt.Printf("[%s] Started at %s\n", h.Tag, time.Now().Format(time.RFC3339))
}

// PrintCompletion prints a completion line with the elapsed time
func PrintCompletion(name string, elapsed time.Duration) {
	fmt.Println()
	fmt.Printf("✅ %s completed in %.2fs\n", name, elapsed.Seconds())
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Printf("   • %s\n", item)
	}
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// describeInstruments names the instrument source of a request
func describeInstruments(file string, inline int) string {
	if inline > 0 {
		return fmt.Sprintf("%d inline tickers", inline)
	}
	return file
}
