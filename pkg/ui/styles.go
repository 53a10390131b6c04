// Package ui renders styled terminal output for generation runs using
// lipgloss.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary   = lipgloss.Color("#7D56F4")
	colorSecondary = lipgloss.Color("#56C3F4")
	colorSuccess   = lipgloss.Color("#5AF78E")
	colorWarning   = lipgloss.Color("#F7DC6F")
	colorError     = lipgloss.Color("#FF6B9D")
	colorMuted     = lipgloss.Color("#6C7086")
	colorText      = lipgloss.Color("#CDD6F4")
	colorSubtle    = lipgloss.Color("#7F849C")
	colorBorder    = lipgloss.Color("#45475A")
	colorHighlight = lipgloss.Color("#F5E0DC")
	colorNormal    = lipgloss.Color("#FFFFFF")
)

var (
	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 2).
			MarginBottom(1)

	styleVersion = lipgloss.NewStyle().Foreground(colorSubtle).Italic(true)
	styleSection = lipgloss.NewStyle().Bold(true).Foreground(colorSecondary).MarginTop(1)

	styleFilePath   = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true)
	styleFileInput  = lipgloss.NewStyle().Foreground(colorText)
	styleFileOutput = lipgloss.NewStyle().Foreground(colorSuccess)

	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)

	styleStepLabel = lipgloss.NewStyle().Foreground(colorText).Width(16).Align(lipgloss.Left)
	styleStepTime  = lipgloss.NewStyle().Foreground(colorSubtle).Italic(true)

	styleSummary = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(colorBorder).
			MarginTop(1).
			PaddingTop(1)

	styleIndent     = lipgloss.NewStyle().PaddingLeft(2)
	styleNormalText = lipgloss.NewStyle().Foreground(colorNormal)
)

// RunOutput renders one generation run's progress to the terminal.
type RunOutput struct {
	startTime time.Time
}

// NewRunOutput starts a run's elapsed-time clock.
func NewRunOutput() *RunOutput {
	return &RunOutput{startTime: time.Now()}
}

// PrintHeader prints the tool banner.
func (r *RunOutput) PrintHeader(version string) {
	fmt.Println(styleHeader.Render("mtlgen") + " " + styleVersion.Render("v"+version))
}

// PrintModuleStart announces the module being generated from.
func (r *RunOutput) PrintModuleStart(modulePath, templateName string) {
	fmt.Println(styleSection.Render("Generating"))
	input := styleFileInput.Render(modulePath)
	arrow := styleMuted.Render("→")
	target := styleFileOutput.Render(templateName)
	fmt.Printf("  %s %s %s\n\n", input, arrow, target)
}

// StepStatus is the outcome of one statistics-relevant step (template
// execution, validation, etc.).
type StepStatus int

const (
	StepSuccess StepStatus = iota
	StepSkipped
	StepWarning
	StepError
)

// Step is one reported line of run progress.
type Step struct {
	Name     string
	Status   StepStatus
	Duration time.Duration
	Message  string
}

// PrintStep renders one Step.
func (r *RunOutput) PrintStep(step Step) {
	var icon, rendered string
	switch step.Status {
	case StepSuccess:
		icon, rendered = "✓", styleSuccess.Render("Done")
	case StepSkipped:
		icon, rendered = "○", styleMuted.Render("Skipped")
	case StepWarning:
		icon, rendered = "⚠", styleWarning.Render("Warning")
	case StepError:
		icon, rendered = "✗", styleError.Render("Failed")
	}

	line := fmt.Sprintf("  %s %s %s", icon, styleStepLabel.Render(step.Name), rendered)
	if step.Duration > 0 {
		line += " " + styleStepTime.Render("("+formatDuration(step.Duration)+")")
	}
	fmt.Println(line)
	if step.Message != "" {
		fmt.Println(styleMuted.Render("    " + step.Message))
	}
}

// PrintSummary renders the final pass/fail line with elapsed time and
// template execution count (spec §6.5 "Generation statistics").
func (r *RunOutput) PrintSummary(success bool, templatesExecuted int, errMsg string) {
	elapsed := time.Since(r.startTime)
	fmt.Println()

	var summary string
	if success {
		summary = fmt.Sprintf("%s %s %d template(s) in %s",
			"✨", styleSuccess.Render("Generation complete."),
			templatesExecuted, styleStepTime.Render(formatDuration(elapsed)))
	} else {
		summary = fmt.Sprintf("%s %s", "✗", styleError.Render("Generation failed."))
		if errMsg != "" {
			summary += "\n" + styleError.Render("   Error: ") + errMsg
		}
	}
	fmt.Println(styleSummary.Render(summary))
}

// PrintError renders a standalone error line.
func (r *RunOutput) PrintError(msg string) {
	fmt.Println(styleIndent.Render(styleError.Render("✗ Error: ") + msg))
}

// PrintWarning renders a standalone warning line.
func (r *RunOutput) PrintWarning(msg string) {
	fmt.Println(styleIndent.Render(styleWarning.Render("⚠ Warning: ") + msg))
}

// PrintInfo renders a standalone informational line.
func (r *RunOutput) PrintInfo(msg string) {
	fmt.Println(styleIndent.Render(styleMuted.Render("ℹ " + msg)))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// Box draws a bordered box around content, with an optional title.
func Box(title, content string) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary).
		Padding(1, 2).
		Width(60)

	if title != "" {
		titleStyle := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
		content = titleStyle.Render(title) + "\n\n" + content
	}
	return boxStyle.Render(content)
}

// Table renders a simple two-column label/value table.
func Table(rows [][]string) string {
	maxWidth := 0
	for _, row := range rows {
		if len(row) > 0 && len(row[0]) > maxWidth {
			maxWidth = len(row[0])
		}
	}
	var lines []string
	for _, row := range rows {
		if len(row) >= 2 {
			label := styleMuted.Render(fmt.Sprintf("%-*s", maxWidth, row[0]))
			value := styleNormalText.Render(row[1])
			lines = append(lines, fmt.Sprintf("  %s  %s", label, value))
		}
	}
	return strings.Join(lines, "\n")
}

// Divider draws a horizontal rule.
func Divider() string {
	return styleMuted.Render(strings.Repeat("─", 60))
}
