package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"adstoryboard/internal/storyboard"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(72)
)

func renderSceneCard(scene storyboard.Scene, imagePath string) string {
	var b strings.Builder
	b.WriteString(titleStyle.UnsetMarginBottom().Render(fmt.Sprintf("Scene %d", scene.Index)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Visual:"), scene.Description)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Voice-over:"), scene.VoiceOver)
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("Backsound:"), scene.Backsound)
	if imagePath != "" {
		fmt.Fprintf(&b, "\n%s %s", labelStyle.Render("Image:"), imagePath)
	}
	return cardStyle.Render(b.String())
}
