package tui

import "github.com/charmbracelet/lipgloss"

var (
	styleAuthor = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	styleOwn    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	styleTime   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleUnread = lipgloss.NewStyle().Bold(true)

	stylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	styleSnippet = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(lipgloss.Color("240")).
			PaddingLeft(1)

	styleReactions = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))

	styleBanner = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	styleStatusBar = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("238")).
			Padding(0, 1)

	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	styleCompose = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(lipgloss.Color("240"))
)
