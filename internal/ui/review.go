package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plsync/internal/decision"
)

const (
	defaultWidth  = 80
	defaultHeight = 20
)

// ErrReviewAborted is returned when the operator aborts the run from a prompt.
var ErrReviewAborted = errors.New("review aborted by operator")

// ReviewModel is the bubbletea model for one review request.
type ReviewModel struct {
	req       decision.ReviewRequest
	list      list.Model
	input     textinput.Model
	help      help.Model
	keys      keyMap
	searching bool
	verdict   decision.Verdict
	done      bool
	aborted   bool
}

// NewReviewModel creates a review prompt for req.
func NewReviewModel(req decision.ReviewRequest) *ReviewModel {
	l := list.New(candidateItems(req.Candidates), list.NewDefaultDelegate(), defaultWidth, defaultHeight)
	l.Title = "Candidates"
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(len(req.Candidates) > 1)
	l.DisableQuitKeybindings()

	input := textinput.New()
	input.Placeholder = "artist - title"
	input.CharLimit = 200
	input.Width = defaultWidth - 10

	return &ReviewModel{
		req:   req,
		list:  l,
		input: input,
		help:  help.New(),
		keys:  newKeyMap(),
	}
}

// Verdict returns the operator's answer. It is meaningful once Done is true.
func (m *ReviewModel) Verdict() decision.Verdict { return m.verdict }

// Done reports whether the operator answered.
func (m *ReviewModel) Done() bool { return m.done }

// Aborted reports whether the operator aborted the run.
func (m *ReviewModel) Aborted() bool { return m.aborted }

// Searching reports whether the custom query input is open.
func (m *ReviewModel) Searching() bool { return m.searching }

func (m *ReviewModel) Init() tea.Cmd { return nil }

// Update handles incoming messages and updates the model state.
func (m *ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, max(msg.Height-10, 4))
		m.input.Width = max(msg.Width-10, 10)
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.abort) {
			m.aborted = true
			return m, tea.Quit
		}
		if m.searching {
			return m.handleSearchKeys(msg)
		}
		return m.handleReviewKeys(msg)
	}

	if m.searching {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ReviewModel) handleReviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.accept):
		item, ok := m.list.SelectedItem().(candidateItem)
		if !ok {
			return m, nil
		}
		return m.answer(decision.Verdict{Action: decision.Accept, CandidateID: item.candidate.ID})
	case key.Matches(msg, m.keys.reject):
		return m.answer(decision.Verdict{Action: decision.Reject})
	case key.Matches(msg, m.keys.later):
		return m.answer(decision.Verdict{Action: decision.Defer})
	case key.Matches(msg, m.keys.skip):
		return m.answer(decision.Verdict{Action: decision.NoSuggestion})
	case key.Matches(msg, m.keys.search):
		if !m.req.AllowSearch {
			return m, nil
		}
		m.searching = true
		m.input.SetValue(fmt.Sprintf("%s - %s", m.req.Entry.Artist, m.req.Entry.Title))
		m.input.CursorEnd()
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ReviewModel) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.searching = false
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.submit):
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		return m.answer(decision.Verdict{Action: decision.Search, Query: query})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ReviewModel) answer(v decision.Verdict) (tea.Model, tea.Cmd) {
	m.verdict = v
	m.done = true
	return m, tea.Quit
}

// View renders the prompt.
func (m *ReviewModel) View() string {
	if m.done || m.aborted {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("Review: %s - %s", m.req.Entry.Artist, m.req.Entry.Title)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s line %d", filepath.Base(m.req.Playlist), m.req.Entry.Line)
	if m.req.Round > 0 {
		fmt.Fprintf(&b, " • search round %d", m.req.Round)
	}
	b.WriteString("\n")
	if m.req.LowScore {
		b.WriteString(styles.warn.Render("Best score is below the review threshold."))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(m.req.Candidates) == 0 {
		b.WriteString(styles.err.Render("No candidates found."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.list.View())
		b.WriteString("\n")
	}

	helpKeys := m.keys.ShortHelp()
	if m.searching {
		b.WriteString("\nSearch: ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		helpKeys = []key.Binding{m.keys.submit, m.keys.back, m.keys.abort}
	} else {
		helpKeys = append([]key.Binding{m.keys.up, m.keys.down}, helpKeys...)
		helpKeys = append(helpKeys, m.keys.skip)
		if m.req.AllowSearch {
			helpKeys = append(helpKeys, m.keys.search)
		}
	}

	b.WriteString("\n")
	b.WriteString(styles.help.Render(m.help.ShortHelpView(helpKeys)))
	return b.String()
}

// Reviewer prompts the operator in the terminal. It implements [decision.Reviewer].
type Reviewer struct {
	in    io.Reader
	out   io.Writer
	abort context.CancelFunc
}

// NewReviewer creates a terminal reviewer. abort, when set, is called when the
// operator aborts the run from a prompt.
func NewReviewer(in io.Reader, out io.Writer, abort context.CancelFunc) *Reviewer {
	return &Reviewer{in: in, out: out, abort: abort}
}

func (r *Reviewer) Name() string { return "operator" }

// Review runs one prompt and returns the operator's verdict.
func (r *Reviewer) Review(ctx context.Context, req decision.ReviewRequest) (decision.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return decision.Verdict{}, err
	}

	model := NewReviewModel(req)
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(r.in),
		tea.WithOutput(r.out),
	)

	final, err := program.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decision.Verdict{}, ctxErr
		}
		return decision.Verdict{}, fmt.Errorf("review prompt failed: %w", err)
	}

	m, ok := final.(*ReviewModel)
	if !ok {
		return decision.Verdict{}, fmt.Errorf("review prompt returned %T", final)
	}
	if m.Aborted() {
		if r.abort != nil {
			r.abort()
		}
		return decision.Verdict{}, ErrReviewAborted
	}
	if !m.Done() {
		return decision.Verdict{Action: decision.NoSuggestion}, nil
	}
	return m.Verdict(), nil
}
