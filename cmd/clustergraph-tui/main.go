package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/clustergraph/pkg/client"
	"github.com/rmax-ai/clustergraph/pkg/graph"
)

// Config
const (
	pollRate       = time.Second
	fetchTimeout   = 500 * time.Millisecond
	maxPasses      = 10
	viewportHeight = 20
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	groupStyle       = lipgloss.NewStyle().Bold(true)
	cloneStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	placeholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	agentStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	storageStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	orderStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Width(12)
	colocationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Width(12)
	constraintStyle = lipgloss.NewStyle().Width(24)
	passTimeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
)

type tickMsg time.Time

type dataMsg struct {
	graph  *graph.Graph
	passes []client.Pass
	status client.Status
	err    error
}

type model struct {
	api      *client.Client
	spinner  spinner.Model
	viewport viewport.Model
	graph    *graph.Graph
	passes   []client.Pass
	status   client.Status
	err      error
	ready    bool
}

func initialModel(api *client.Client) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		api:      api,
		spinner:  s,
		viewport: newViewport(100),
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchData(m.api),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchData(m.api)
		}
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchData(m.api), tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.graph = msg.graph
			m.passes = msg.passes
			m.status = msg.status
			m.viewport.SetContent(renderEdges(m.graph) + "\n" + renderPasses(m.passes))
		}
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

func renderTree(g *graph.Graph) string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Resources") + "\n\n")
	if g == nil || len(g.Nodes) == 0 {
		sb.WriteString(subtleStyle.Render("No resources reconciled yet."))
		return sb.String()
	}

	g.Walk(func(n *graph.Node, depth int) {
		indent := strings.Repeat("  ", depth)
		var name string
		switch n.Type {
		case graph.NodeGroup:
			name = groupStyle.Render(n.ID)
		case graph.NodeClone:
			name = cloneStyle.Render(n.ID + " (clone)")
		default:
			name = n.ID
		}
		line := fmt.Sprintf("%s• %s", indent, name)
		if agent := n.Properties["agent"]; agent != "" {
			line += " " + agentStyle.Render(agent)
		}
		if dev := n.Properties["storage_dependency"]; dev != "" {
			line += " " + storageStyle.Render("on "+dev)
		}
		sb.WriteString(line + "\n")
	})
	for _, ph := range g.Placeholders() {
		sb.WriteString(placeholderStyle.Render("◦ "+ph.ID) + "\n")
	}
	return sb.String()
}

func renderEdges(g *graph.Graph) string {
	var sb strings.Builder
	if g == nil || len(g.Edges) == 0 {
		return subtleStyle.Render("No constraints.") + "\n"
	}
	for _, e := range g.Edges {
		kind := orderStyle.Render(string(e.Type))
		if e.Type == graph.EdgeColocation {
			kind = colocationStyle.Render(string(e.Type))
		}
		sb.WriteString(fmt.Sprintf("%s %s %s -> %s\n", kind, constraintStyle.Render(e.ConstraintID), e.FromID, e.ToID))
	}
	return sb.String()
}

func renderPasses(passes []client.Pass) string {
	var sb strings.Builder
	for _, p := range passes {
		line := fmt.Sprintf("%s +%d -%d placeholders:%d unresolved:%d",
			passTimeStyle.Render(p.StartedAt.Local().Format("15:04:05")),
			p.Created, p.Removed, p.PlaceholdersCreated, p.Unresolved)
		if p.Error != "" {
			line = errorStyle.Render(line + " " + p.Error)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Initializing...", m.spinner.View())
	}

	topPane := paneStyle.Render(renderTree(m.graph))
	header := headerStyle.Render(fmt.Sprintf("%s Constraints and passes", m.spinner.View()))
	bottomPane := m.viewport.View()

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		role := "follower"
		if m.status.Leader {
			role = "leader"
		}
		nodes, edges := 0, 0
		if m.graph != nil {
			nodes, edges = len(m.graph.Nodes), len(m.graph.Edges)
		}
		status = okStyle.Render(fmt.Sprintf("Online • %s (%s) • %d Nodes • %d Edges", m.status.ClusterID, role, nodes, edges))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress r to refresh, q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, bottomPane, footer)
}

// Commands

func fetchData(api *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		status, err := api.Ping(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		g, err := api.GetGraph(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		passes, err := api.GetPasses(ctx, maxPasses)
		if err != nil {
			return dataMsg{err: err}
		}
		return dataMsg{graph: g, passes: passes, status: status}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	apiURL := flag.String("api", "http://localhost:8090", "base URL of clustergraph-d")
	flag.Parse()

	p := tea.NewProgram(initialModel(client.NewClient(*apiURL)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
