// Package ui prints progress for the command line converter.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Out receives everything the package prints.
var Out io.Writer = color.Output

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

// Header prints a formatted header
func Header(text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(Out, "\n%s\n", line)
	green.Fprintf(Out, "%-60s\n", center(text, 60))
	green.Fprintf(Out, "%s\n\n", line)
}

// Step prints a step indicator
func Step(stepNum, totalSteps int, text string) {
	yellow.Fprintf(Out, "[%d/%d] %s\n", stepNum, totalSteps, text)
}

// Success prints a success message
func Success(text string) {
	green.Fprintf(Out, "  → %s\n", text)
}

// Info prints an info message
func Info(text string) {
	fmt.Fprintf(Out, "  → %s\n", text)
}

// Detail prints a dimmed key/value line.
func Detail(key string, value any) {
	faint.Fprintf(Out, "    %-16s %v\n", key+":", value)
}

// Warning prints a warning message
func Warning(text string) {
	yellow.Fprintf(Out, "  ⚠ %s\n", text)
}

// Error prints an error message
func Error(text string) {
	red.Fprintf(Out, "Error: %s\n", text)
}

// center centers text within a given width
func center(text string, width int) string {
	n := len([]rune(text))
	if n >= width {
		return text
	}
	padding := (width - n) / 2
	return strings.Repeat(" ", padding) + text
}
