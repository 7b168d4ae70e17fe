// Package ui implements the interactive operator review prompt using bubbletea's Elm architecture.
//
// A [ReviewModel] shows one ambiguous playlist entry with its ranked catalog
// candidates and collects a single [decision.Verdict]:
//   - accept the selected candidate (enter/a)
//   - reject the entry (x)
//   - defer it to a later run (d)
//   - search the catalog with a custom query (s), when the policy allows it
//   - skip without a suggestion (n)
//
// [Reviewer] runs one bubbletea program per request and implements
// [decision.Reviewer]. The decision policy guarantees at most one prompt is
// outstanding, so programs never share the terminal.
//
// Keyboard navigation uses vim-style bindings (j/k) with contextual help displayed via charmbracelet/bubbles/help.
package ui
