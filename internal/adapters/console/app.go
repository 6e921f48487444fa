// Package console implements the optional --console bubbletea TUI: a
// live feed of canonical attack records, a top-source-address ranking,
// and a status bar of pipeline/API-client gauges. Adapted from
// internal/tui/*; the per-record drill-down inspector view is dropped
// since canonical records carry no raw payload worth a dedicated
// scrollable panel the way a full HTTP request/response pair did.
package console

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/oriongate/sentryhive/internal/domain"
)

const (
	maxRecordsPerTick = 50
	uiTickInterval    = 100 * time.Millisecond
)

// App is the bubbletea root model. It implements ports.AttackObserver
// so the supervisor can register it directly as a pipeline observer.
type App struct {
	model      *Model
	throughput *Throughput
	feed       *RecordFeed
	topSources *TopSources
	statusBar  *StatusBar

	ready    bool
	quitting bool
	width    int
	height   int

	recordBuffer   []domain.CanonicalAttackRecord
	recordBufferMu sync.Mutex
	droppedRecords int64
	maxBuffer      int

	gaugesChan chan Gauges
	lastGauges Gauges

	honeypotID string
	startTime  time.Time
}

func NewApp(honeypotID string) *App {
	return &App{
		model:        NewModel(),
		throughput:   NewThroughput(80),
		feed:         NewRecordFeed(15),
		topSources:   NewTopSources(100),
		statusBar:    NewStatusBar(100),
		recordBuffer: make([]domain.CanonicalAttackRecord, 0, 100),
		maxBuffer:    500,
		gaugesChan:   make(chan Gauges, 10),
		honeypotID:   honeypotID,
		startTime:    time.Now(),
	}
}

type tickMsg time.Time
type gaugesMsg Gauges

func (a *App) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, a.tick(), a.listenForGauges())
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(uiTickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) listenForGauges() tea.Cmd {
	return func() tea.Msg { return gaugesMsg(<-a.gaugesChan) }
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "tab":
			a.model.NextView()
		case "up", "k":
			a.feed.ScrollUp()
		case "down", "j":
			a.feed.ScrollDown()
		}
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.ready = true
		a.model.SetDimensions(msg.Width, msg.Height)
		a.feed.Width = msg.Width - 4
		a.topSources.Width = msg.Width - 4
		a.statusBar.Width = msg.Width
		a.throughput.SetWidth(msg.Width - 4)

		contentHeight := msg.Height - 12
		if contentHeight < 5 {
			contentHeight = 5
		}
		a.feed.VisibleCount = contentHeight
		a.topSources.VisibleCount = contentHeight
	case tickMsg:
		a.processBatchedRecords()
		return a, a.tick()
	case gaugesMsg:
		a.lastGauges = Gauges(msg)
		a.model.UpdateGauges(a.lastGauges)
		a.throughput.Update(a.lastGauges.ObservationsPerSecond)
		a.statusBar.Update(a.lastGauges)
		return a, a.listenForGauges()
	}
	return a, nil
}

func (a *App) processBatchedRecords() {
	a.topSources.Update(a.model.GetTopIPs())

	a.recordBufferMu.Lock()
	defer a.recordBufferMu.Unlock()
	if len(a.recordBuffer) == 0 {
		return
	}
	count := len(a.recordBuffer)
	if count > maxRecordsPerTick {
		count = maxRecordsPerTick
	}
	for i := 0; i < count; i++ {
		a.model.AddRecord(a.recordBuffer[i])
	}
	a.recordBuffer = a.recordBuffer[count:]
	a.feed.Update(a.model.GetRecords())
}

func (a *App) View() string {
	if a.quitting {
		return "\n  Session terminated.\n\n"
	}
	if !a.ready {
		return "\n  Initializing...\n\n"
	}

	dim := lipgloss.NewStyle().Foreground(ColorDim)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)

	var b strings.Builder

	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(dim.Render(strings.Repeat("─", a.width)))
	b.WriteString("\n")

	b.WriteString(a.throughput.Render())
	b.WriteString("\n\n")

	viewName := "RECORDS"
	content := a.feed.Render()
	if a.model.ActiveView == 1 {
		viewName = "TOP SOURCES"
		content = a.topSources.Render()
	}
	b.WriteString(muted.Render("  " + viewName))
	b.WriteString("\n")
	b.WriteString(content)

	b.WriteString("\n\n")
	b.WriteString(a.statusBar.Render())
	b.WriteString("\n")
	b.WriteString(a.renderHelp())

	return b.String()
}

func (a *App) renderHeader() string {
	green := lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	red := lipgloss.NewStyle().Foreground(ColorCritical)
	dim := lipgloss.NewStyle().Foreground(ColorDim)

	title := green.Render("SENTRYHIVE")

	status := green.Render("WATCHING")
	if a.lastGauges.TotalReports > 0 {
		status = red.Render("ACTIVE ATTACKERS")
	}

	return fmt.Sprintf("  %s  %s  %s %s",
		title, status,
		dim.Render("HONEYPOT:"), a.honeypotID)
}

func (a *App) renderHelp() string {
	dim := lipgloss.NewStyle().Foreground(ColorDim)
	key := lipgloss.NewStyle().Foreground(ColorPrimaryDim)
	views := []string{"RECORDS", "SOURCES"}
	return dim.Render(fmt.Sprintf("  %s [%s]  %s scroll  %s quit",
		key.Render("TAB"), views[a.model.ActiveView], key.Render("↑↓"), key.Render("q")))
}

// OnRecord implements ports.AttackObserver. Both admitted and suppressed
// records are shown; suppressed ones simply won't move SUP: much beyond
// what the gauges already report.
func (a *App) OnRecord(rec domain.CanonicalAttackRecord, admitted bool) {
	a.model.IncrementIPCounter(rec)

	a.recordBufferMu.Lock()
	defer a.recordBufferMu.Unlock()
	if len(a.recordBuffer) >= a.maxBuffer {
		a.droppedRecords++
		a.recordBuffer = a.recordBuffer[a.maxBuffer/10:]
	}
	a.recordBuffer = append(a.recordBuffer, rec)
}

// SendGauges pushes a fresh gauge snapshot into the UI loop. Non-blocking:
// a stale reading is preferred over stalling the caller's ticker.
func (a *App) SendGauges(g Gauges) {
	select {
	case a.gaugesChan <- g:
	default:
	}
}

func (a *App) DroppedRecords() int64 {
	a.recordBufferMu.Lock()
	defer a.recordBufferMu.Unlock()
	return a.droppedRecords
}

// Run blocks until the user quits the console.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
