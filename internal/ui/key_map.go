package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the review prompt.
type keyMap struct {
	up     key.Binding
	down   key.Binding
	accept key.Binding
	reject key.Binding
	later  key.Binding
	search key.Binding
	skip   key.Binding
	submit key.Binding
	back   key.Binding
	abort  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		accept: key.NewBinding(key.WithKeys("enter", "a"), key.WithHelp("enter/a", "accept")),
		reject: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reject")),
		later:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "defer")),
		search: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "search")),
		skip:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "skip")),
		submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search")),
		back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		abort:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "abort run")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.accept, k.reject, k.later, k.abort}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.accept},
		{k.reject, k.later, k.skip},
		{k.search, k.back, k.abort},
	}
}
