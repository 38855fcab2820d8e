package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"kilometers.ai/appdeploy/internal/application/commands"
	"kilometers.ai/appdeploy/internal/application/services"
	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// Output formats accepted by --output
const (
	OutputText = "text"
	OutputJSON = "json"
)

func validateOutputFormat(format string) error {
	switch format {
	case OutputText, OutputJSON:
		return nil
	}
	return newUsageError(fmt.Errorf("invalid output format %q (use text or json)", format))
}

// styles renders report text for one writer
type styles struct {
	title    lipgloss.Style
	muted    lipgloss.Style
	ok       lipgloss.Style
	failed   lipgloss.Style
	warning  lipgloss.Style
	skipped  lipgloss.Style
	stepName lipgloss.Style
}

func newStyles(w io.Writer, noColor bool) styles {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}

	return styles{
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("245")),
		ok:       r.NewStyle().Foreground(lipgloss.Color("46")),
		failed:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		warning:  r.NewStyle().Foreground(lipgloss.Color("214")),
		skipped:  r.NewStyle().Foreground(lipgloss.Color("240")),
		stepName: r.NewStyle().Width(16),
	}
}

// renderOutcome writes a run outcome in the requested format
func renderOutcome(w io.Writer, format string, st styles, outcome *services.RunOutcome, runErr error) error {
	if format == OutputJSON {
		return writeJSON(w, outcomeResult(outcome, runErr))
	}

	if outcome.DryRun {
		_, err := io.WriteString(w, renderPlan(st, outcome))
		return err
	}
	_, err := io.WriteString(w, renderRun(st, outcome))
	return err
}

// outcomeResult wraps an outcome in the command result envelope
func outcomeResult(outcome *services.RunOutcome, runErr error) *commands.CommandResult {
	var result *commands.CommandResult
	switch {
	case runErr != nil:
		result = commands.NewErrorResult(fmt.Sprintf("%s failed", outcome.Name), []string{runErr.Error()})
		result.Data = outcome
	case outcome.DryRun:
		result = commands.NewSuccessResult(fmt.Sprintf("%s planned", outcome.Name), outcome)
	default:
		result = commands.NewSuccessResult(fmt.Sprintf("%s succeeded", outcome.Name), outcome)
	}

	for _, warning := range outcome.Warnings {
		result.AddWarning(warning)
	}
	if outcome.Report != nil {
		result.ExecutionTime = outcome.Report.Duration()
		result.SetMetadata("run_id", outcome.Report.RunID)
		result.SetMetadata("exit_code", outcome.Report.ExitCode())
	}
	return result
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderPlan(st styles, outcome *services.RunOutcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", st.title.Render("Plan: "+outcome.Name), st.muted.Render("build "+outcome.BuildNumber))
	for i, step := range outcome.Planned {
		marker := ""
		if step.Optional {
			marker = st.muted.Render(" (optional)")
		}
		fmt.Fprintf(&b, "  %d. %s%s %s\n", i+1, st.stepName.Render(step.Name), marker, st.muted.Render(step.Description))
	}
	if outcome.PackagePath != "" {
		fmt.Fprintf(&b, "Package: %s\n", outcome.PackagePath)
	}
	b.WriteString(st.muted.Render("Dry run: nothing was executed") + "\n")
	return b.String()
}

func renderRun(st styles, outcome *services.RunOutcome) string {
	var b strings.Builder

	b.WriteString(renderReport(st, outcome.Report, plannedNames(outcome)))
	if outcome.PackagePath != "" && outcome.Report.Succeeded() {
		fmt.Fprintf(&b, "Package: %s\n", outcome.PackagePath)
	}
	for _, warning := range outcome.Warnings {
		fmt.Fprintf(&b, "%s %s\n", st.warning.Render("Warning:"), warning)
	}
	return b.String()
}

func plannedNames(outcome *services.RunOutcome) []string {
	names := make([]string, 0, len(outcome.Planned))
	for _, step := range outcome.Planned {
		names = append(names, step.Name)
	}
	return names
}

// renderReport renders one report's step results. planned supplies the
// names of steps that never ran; without it they are only counted.
func renderReport(st styles, report *pipeline.Report, planned []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n",
		st.title.Render(displayName(report)),
		st.muted.Render(fmt.Sprintf("run %s  %s", report.RunID, report.StartedAt.Local().Format(time.DateTime))))

	for _, result := range report.Results {
		b.WriteString("  " + renderResult(st, result) + "\n")
	}

	if skipped := report.Skipped(); skipped > 0 {
		if len(planned) == report.Declared {
			for _, name := range planned[report.Len():] {
				fmt.Fprintf(&b, "  %s %s %s\n", st.skipped.Render("-"), st.stepName.Render(name), st.skipped.Render("skipped"))
			}
		} else {
			fmt.Fprintf(&b, "  %s\n", st.skipped.Render(fmt.Sprintf("%d step(s) skipped", skipped)))
		}
	}

	duration := report.Duration().Round(time.Millisecond)
	if report.Succeeded() {
		fmt.Fprintf(&b, "%s in %s\n", st.ok.Render("SUCCEEDED"), duration)
	} else {
		fmt.Fprintf(&b, "%s in %s (exit code %d)\n", st.failed.Render("FAILED"), duration, report.ExitCode())
	}
	return b.String()
}

func renderResult(st styles, result pipeline.StepResult) string {
	duration := st.muted.Render(result.Duration.Round(time.Millisecond).String())

	switch {
	case result.Succeeded:
		return fmt.Sprintf("%s %s %s", st.ok.Render("✓"), st.stepName.Render(result.Name), duration)
	case result.Optional:
		return fmt.Sprintf("%s %s %s %s", st.warning.Render("!"), st.stepName.Render(result.Name), duration, st.warning.Render(result.Message))
	default:
		return fmt.Sprintf("%s %s %s %s", st.failed.Render("✗"), st.stepName.Render(result.Name), duration, st.failed.Render(result.Message))
	}
}

func displayName(report *pipeline.Report) string {
	if report.Name == "" {
		return "pipeline"
	}
	return report.Name
}

// renderHistory renders a table of runs, newest first
func renderHistory(st styles, reports []*pipeline.Report) string {
	if len(reports) == 0 {
		return st.muted.Render("No runs recorded yet") + "\n"
	}

	var b strings.Builder
	header := fmt.Sprintf("%-36s  %-12s  %-19s  %-7s  %-9s  %s", "RUN ID", "NAME", "STARTED", "STEPS", "RESULT", "DURATION")
	b.WriteString(st.title.Render(header) + "\n")

	for _, report := range reports {
		result := st.ok.Render(fmt.Sprintf("%-9s", "ok"))
		if !report.Succeeded() {
			result = st.failed.Render(fmt.Sprintf("%-9s", fmt.Sprintf("exit %d", report.ExitCode())))
		}

		fmt.Fprintf(&b, "%-36s  %-12s  %-19s  %-7s  %s  %s\n",
			report.RunID,
			truncateString(displayName(report), 12),
			report.StartedAt.Local().Format(time.DateTime),
			fmt.Sprintf("%d/%d", report.Len(), report.Declared),
			result,
			report.Duration().Round(time.Millisecond),
		)
	}
	return b.String()
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
