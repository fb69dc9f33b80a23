package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/observastack/loadpanel/internal/config"
)

const (
	fieldTarget = iota
	fieldTotal
	fieldConcurrency
	fieldDelay
	fieldAdaptive
	fieldCount
)

type field struct {
	label string
	input textinput.Model
}

type form struct {
	fields []field
	focus  int
}

func newForm(cfg config.Config) form {
	values := [fieldCount]struct {
		label, placeholder, value string
	}{
		fieldTarget:      {"Target URL", "http://localhost:8080/api", cfg.TargetURL},
		fieldTotal:       {"Total requests", "100", strconv.Itoa(cfg.Total)},
		fieldConcurrency: {"Concurrency", "10", strconv.Itoa(cfg.Concurrency)},
		fieldDelay:       {"Delay", "0s", cfg.Delay.String()},
		fieldAdaptive:    {"Adaptive (y/n)", "n", yesNo(cfg.Adaptive)},
	}

	f := form{fields: make([]field, fieldCount)}
	for i, v := range values {
		in := textinput.New()
		in.Placeholder = v.placeholder
		in.CharLimit = 512
		in.SetValue(v.value)
		f.fields[i] = field{label: v.label, input: in}
	}
	f.setFocus(0)
	return f
}

func (f *form) setFocus(i int) {
	n := len(f.fields)
	f.focus = ((i % n) + n) % n
	for j := range f.fields {
		if j == f.focus {
			f.fields[j].input.Focus()
			f.fields[j].input.PromptStyle = activeStyle
			f.fields[j].input.TextStyle = activeStyle
		} else {
			f.fields[j].input.Blur()
			f.fields[j].input.PromptStyle = lipgloss.NewStyle()
			f.fields[j].input.TextStyle = lipgloss.NewStyle()
		}
	}
}

func (f *form) next() { f.setFocus(f.focus + 1) }
func (f *form) prev() { f.setFocus(f.focus - 1) }

func (f form) update(msg tea.Msg) (form, tea.Cmd) {
	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return f, cmd
}

func (f form) value(i int) string {
	return strings.TrimSpace(f.fields[i].input.Value())
}

// apply copies the form values onto base and validates the result.
func (f form) apply(base config.Config) (config.Config, error) {
	cfg := base
	cfg.TargetURL = f.value(fieldTarget)

	total, err := strconv.Atoi(f.value(fieldTotal))
	if err != nil {
		return base, fmt.Errorf("total requests: %q is not a number", f.value(fieldTotal))
	}
	cfg.Total = total

	conc, err := strconv.Atoi(f.value(fieldConcurrency))
	if err != nil {
		return base, fmt.Errorf("concurrency: %q is not a number", f.value(fieldConcurrency))
	}
	cfg.Concurrency = conc

	delay, err := parseDelay(f.value(fieldDelay))
	if err != nil {
		return base, err
	}
	cfg.Delay = delay

	adaptive, err := parseYesNo(f.value(fieldAdaptive))
	if err != nil {
		return base, err
	}
	cfg.Adaptive = adaptive

	cfg.Dashboard = false
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

func (f form) view() string {
	var b strings.Builder
	for _, fl := range f.fields {
		b.WriteString(labelStyle.Render(fl.label))
		b.WriteString(fl.input.View())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseDelay accepts a Go duration or a bare number of milliseconds.
func parseDelay(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("delay: %q is not a duration", s)
	}
	return d, nil
}

func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "y", "yes", "true", "1":
		return true, nil
	case "", "n", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("adaptive: %q is not y or n", s)
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
