package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/theirongolddev/cchat/internal/app"
	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/model"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
)

type formKind int

const (
	formLogin formKind = iota
	formParams
)

// activeForm is the modal form currently shown over the tabs. The value
// structs live on the heap because App is copied on every Update.
type activeForm struct {
	form   *huh.Form
	kind   formKind
	login  *loginValues
	params *paramValues
}

// formDoneMsg reports the result of the action a submitted form started.
type formDoneMsg struct {
	kind formKind
	err  error
}

type loginValues struct {
	name string
	key  string
}

type paramValues struct {
	model       string
	temperature string
	maxTokens   string
	topP        string
	topK        string
	stop        string
	system      string
}

func newLoginForm(first bool) *activeForm {
	v := &loginValues{name: "Default"}

	title := "Add API key"
	desc := "The key is validated against the API and stored encrypted."
	if first {
		title = "Welcome to cchat"
		desc = "Paste an Anthropic API key to get started.\n" + desc
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title(title).Description(desc),
			huh.NewInput().
				Title("Profile name").
				Value(&v.name),
			huh.NewInput().
				Title("API key").
				Placeholder("sk-ant-...").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("API key is required")
					}
					return nil
				}).
				Value(&v.key),
		),
	).WithShowHelp(true)

	return &activeForm{form: form, kind: formLogin, login: v}
}

func newParamsForm(p model.RequestParameters) *activeForm {
	v := paramValuesFrom(p)

	floatIn := func(lo, hi float64) func(string) error {
		return func(s string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil || f < lo || f > hi {
				return fmt.Errorf("enter a number between %g and %g", lo, hi)
			}
			return nil
		}
	}
	positiveInt := func(optional bool) func(string) error {
		return func(s string) error {
			s = strings.TrimSpace(s)
			if s == "" && optional {
				return nil
			}
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return errors.New("enter a positive whole number")
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				Suggestions(config.KnownModels()).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("model is required")
					}
					return nil
				}).
				Value(&v.model),
			huh.NewInput().Title("Temperature").Description("0 to 1").Validate(floatIn(0, 1)).Value(&v.temperature),
			huh.NewInput().Title("Max tokens").Validate(positiveInt(false)).Value(&v.maxTokens),
			huh.NewInput().Title("Top P").Description("0 to 1").Validate(floatIn(0, 1)).Value(&v.topP),
			huh.NewInput().Title("Top K").Description("blank for the API default").Validate(positiveInt(true)).Value(&v.topK),
		),
		huh.NewGroup(
			huh.NewInput().Title("Stop sequences").Description("comma separated").Value(&v.stop),
			huh.NewText().Title("System prompt").Lines(5).Value(&v.system),
		),
	).WithShowHelp(true)

	return &activeForm{form: form, kind: formParams, params: v}
}

func paramValuesFrom(p model.RequestParameters) *paramValues {
	v := &paramValues{
		model:       p.Model,
		temperature: strconv.FormatFloat(p.Temperature, 'f', -1, 64),
		maxTokens:   strconv.Itoa(p.MaxTokens),
		topP:        strconv.FormatFloat(p.TopP, 'f', -1, 64),
		stop:        strings.Join(p.StopSequences, ", "),
		system:      p.SystemPrompt,
	}
	if p.TopK != nil {
		v.topK = strconv.Itoa(*p.TopK)
	}
	return v
}

// toParams parses the form strings into a parameter set and validates it.
func (v *paramValues) toParams() (model.RequestParameters, error) {
	var p model.RequestParameters
	var err error

	p.Model = strings.TrimSpace(v.model)
	if p.Temperature, err = strconv.ParseFloat(strings.TrimSpace(v.temperature), 64); err != nil {
		return p, fmt.Errorf("%w: temperature: %v", model.ErrInvalidParams, err)
	}
	if p.MaxTokens, err = strconv.Atoi(strings.TrimSpace(v.maxTokens)); err != nil {
		return p, fmt.Errorf("%w: max tokens: %v", model.ErrInvalidParams, err)
	}
	if p.TopP, err = strconv.ParseFloat(strings.TrimSpace(v.topP), 64); err != nil {
		return p, fmt.Errorf("%w: top p: %v", model.ErrInvalidParams, err)
	}
	if s := strings.TrimSpace(v.topK); s != "" {
		k, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("%w: top k: %v", model.ErrInvalidParams, err)
		}
		p.TopK = &k
	}
	for _, s := range strings.Split(v.stop, ",") {
		if s = strings.TrimSpace(s); s != "" {
			p.StopSequences = append(p.StopSequences, s)
		}
	}
	p.SystemPrompt = strings.TrimSpace(v.system)

	return p, p.Validate()
}

// openForm shows f as a modal and starts it.
func (a App) openForm(f *activeForm) (tea.Model, tea.Cmd) {
	a.form = f
	a.chat.input.Blur()
	if a.width > 0 {
		a.form.form = a.form.form.WithWidth(a.formWidth())
	}
	return a, a.form.form.Init()
}

func (a App) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
		a.form = nil
		return a.afterForm()
	}

	m, cmd := a.form.form.Update(msg)
	if f, ok := m.(*huh.Form); ok {
		a.form.form = f
	}

	switch a.form.form.State {
	case huh.StateCompleted:
		done := a.form
		a.form = nil
		if done.kind == formLogin {
			a.flash = flashMsg{text: "Validating API key..."}
		}
		next, focus := a.afterForm()
		return next, tea.Batch(focus, submitForm(a.rt, done))
	case huh.StateAborted:
		a.form = nil
		return a.afterForm()
	}
	return a, cmd
}

func (a App) afterForm() (tea.Model, tea.Cmd) {
	if a.activeTab == tabChat {
		cmd := a.chat.input.Focus()
		return a, cmd
	}
	return a, nil
}

// submitForm runs the store operation for a completed form.
func submitForm(rt *app.App, f *activeForm) tea.Cmd {
	switch f.kind {
	case formLogin:
		v := *f.login
		return func() tea.Msg {
			_, err := rt.Credentials.Login(context.Background(), v.key, v.name)
			return formDoneMsg{kind: formLogin, err: err}
		}
	case formParams:
		v := *f.params
		return func() tea.Msg {
			p, err := v.toParams()
			if err == nil {
				err = rt.Settings.SetParams(context.Background(), p)
			}
			return formDoneMsg{kind: formParams, err: err}
		}
	}
	return nil
}

func (a App) onFormDone(msg formDoneMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.kind == formLogin && msg.err != nil:
		a.flash = flashMsg{text: msg.err.Error(), err: true}
		return a.openForm(newLoginForm(len(a.rt.Credentials.Profiles()) == 0))
	case msg.err != nil:
		a.flash = flashMsg{text: msg.err.Error(), err: true}
	case msg.kind == formLogin:
		p, _ := a.rt.Credentials.Active()
		a.flash = flashMsg{text: fmt.Sprintf("Profile %q saved (…%s)", p.Name, p.KeySuffix)}
	case msg.kind == formParams:
		a.flash = flashMsg{text: "Request parameters saved"}
	}
	return a, nil
}
