package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatsModel is the bubbletea model for live attack statistics.
type StatsModel struct {
	cycles        uint64
	triggersSent  uint64
	spoofedSent   uint64
	packetsPerSec uint64
	avgPacketsSec float64
	elapsed       float64
	duration      float64
	progressBar   progress.Model
	width         int
	quitting      bool
}

type tickMsg time.Time

type statsUpdateMsg struct {
	cycles        uint64
	triggersSent  uint64
	spoofedSent   uint64
	packetsPerSec uint64
	avgPacketsSec float64
	elapsed       float64
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m StatsModel) Init() tea.Cmd {
	return tickCmd()
}

func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = msg.Width - 20
		return m, nil

	case statsUpdateMsg:
		m.cycles = msg.cycles
		m.triggersSent = msg.triggersSent
		m.spoofedSent = msg.spoofedSent
		m.packetsPerSec = msg.packetsPerSec
		m.avgPacketsSec = msg.avgPacketsSec
		m.elapsed = msg.elapsed
		return m, nil

	case tickMsg:
		return m, tickCmd()
	}

	return m, nil
}

func (m StatsModel) View() string {
	if m.quitting {
		return "Attack complete!\n"
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1).
		Render("KAMINSKY ATTACK STATISTICS")

	stats := fmt.Sprintf("\nCycles: %d\nTrigger Queries: %d\nSpoofed Packets: %d\nCurrent Rate: %d pps\nAverage Rate: %.2f pps\nRuntime: %.1f / %.1f seconds",
		m.cycles, m.triggersSent, m.spoofedSent, m.packetsPerSec, m.avgPacketsSec, m.elapsed, m.duration)

	pct := 1.0
	if m.duration > 0 {
		pct = m.elapsed / m.duration
		if pct > 1 {
			pct = 1
		}
	}
	bar := "\nProgress:\n" + m.progressBar.ViewAs(pct)

	help := "\nPress q to quit"

	return lipgloss.JoinVertical(lipgloss.Left, title, stats, bar, help)
}

// statsCollector polls the attack metrics and feeds either the TUI or
// plain text lines until stopStats closes. It signals programDone once
// the display has shut down.
func statsCollector(metrics *AttackMetrics, duration time.Duration, config *Config, stopStats <-chan struct{}, programDone chan<- struct{}) {
	startTime := time.Now()
	var prevSpoofed uint64

	var p *tea.Program
	if !config.TextOutput {
		p = tea.NewProgram(
			StatsModel{
				progressBar: progress.New(progress.WithDefaultGradient()),
				duration:    duration.Seconds(),
			},
			tea.WithAltScreen(),
		)
		go func() {
			if _, err := p.Run(); err != nil {
				appLogger.Error("UI error: %v", err)
			}
			programDone <- struct{}{}
		}()
	} else {
		fmt.Println("\nKAMINSKY ATTACK STATISTICS")
		fmt.Println("--------------------------")
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	update := func(rate uint64) statsUpdateMsg {
		elapsed := time.Since(startTime).Seconds()
		spoofed := metrics.SpoofedSent.Load()
		return statsUpdateMsg{
			cycles:        metrics.Cycles.Load(),
			triggersSent:  metrics.TriggersSent.Load(),
			spoofedSent:   spoofed,
			packetsPerSec: rate,
			avgPacketsSec: float64(spoofed) / elapsed,
			elapsed:       elapsed,
		}
	}

	for {
		select {
		case <-ticker.C:
			spoofed := metrics.SpoofedSent.Load()
			msg := update(spoofed - prevSpoofed)
			prevSpoofed = spoofed

			if !config.TextOutput {
				p.Send(msg)
			} else {
				fmt.Printf("\rCycles: %d | Triggers: %d | Spoofed: %d | Rate: %d pps | Time: %.1fs",
					msg.cycles, msg.triggersSent, msg.spoofedSent, msg.packetsPerSec, msg.elapsed)
			}
		case <-stopStats:
			msg := update(0)
			if !config.TextOutput {
				p.Send(msg)
				// give the UI time to paint the final frame
				time.Sleep(100 * time.Millisecond)
				p.Quit()
			} else {
				fmt.Printf("\n\nAttack complete!")
				fmt.Printf("\nCycles: %d", msg.cycles)
				fmt.Printf("\nTrigger Queries: %d", msg.triggersSent)
				fmt.Printf("\nSpoofed Packets: %d", msg.spoofedSent)
				fmt.Printf("\nAverage Rate: %.2f pps", msg.avgPacketsSec)
				fmt.Printf("\nTotal Runtime: %.1f seconds\n\n", msg.elapsed)
				programDone <- struct{}{}
			}
			return
		}
	}
}
