package browsecmder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/retrieval"
	"github.com/papercomputeco/recall/pkg/store"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

type browseView int

const (
	viewList browseView = iota
	viewDetail
)

// chrome is the number of lines taken by the header and footer.
const chrome = 4

var statusFilters = []record.PatternStatus{
	record.StatusActive,
	record.StatusStale,
	record.StatusArchived,
}

var (
	browseTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	browseMutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	browseAccentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
	browseHighlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("235")).Background(lipgloss.Color("214")).Bold(true)
	browseErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type browseKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Back    key.Binding
	Search  key.Binding
	Filter  key.Binding
	Stale   key.Binding
	Archive key.Binding
	Quit    key.Binding
}

func (k browseKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.Enter, k.Back, k.Search, k.Filter, k.Stale, k.Archive, k.Quit}
}

func (k browseKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Down, k.Up, k.Enter, k.Back}, {k.Search, k.Filter, k.Stale, k.Archive, k.Quit}}
}

func defaultKeyMap() browseKeyMap {
	return browseKeyMap{
		Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Enter:   key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "open")),
		Back:    key.NewBinding(key.WithKeys("h", "esc"), key.WithHelp("h", "back")),
		Search:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Filter:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "status")),
		Stale:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stale")),
		Archive: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "archive")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type patternsLoadedMsg struct {
	items    []retrieval.Scored
	warnings int
	err      error
}

type statusChangedMsg struct {
	pattern *record.Pattern
	err     error
}

type browseModel struct {
	ctx         context.Context
	store       *store.Store
	engine      *retrieval.Engine
	project     string
	statusIndex int
	items       []retrieval.Scored
	warnings    int
	cursor      int
	view        browseView
	detail      *record.Pattern
	searching   bool
	loading     bool
	flash       string
	err         error
	width       int
	height      int
	search      textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	keys        browseKeyMap
	help        help.Model
}

func runBrowseTUI(ctx context.Context, st *store.Store, engine *retrieval.Engine, project string) error {
	model := newBrowseModel(ctx, st, engine, project)
	program := bubbletea.NewProgram(model,
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err := program.Run()
	return err
}

func newBrowseModel(ctx context.Context, st *store.Store, engine *retrieval.Engine, project string) browseModel {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search patterns"
	search.CharLimit = 200
	search.Cursor.SetMode(cursor.CursorStatic)

	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	spin.Style = browseAccentStyle

	return browseModel{
		ctx:      ctx,
		store:    st,
		engine:   engine,
		project:  project,
		view:     viewList,
		loading:  true,
		width:    cliui.DefaultWidth,
		height:   24,
		search:   search,
		viewport: viewport.New(cliui.DefaultWidth, 24-chrome),
		spinner:  spin,
		keys:     defaultKeyMap(),
		help:     help.New(),
	}
}

func (m browseModel) query() retrieval.Query {
	return retrieval.Query{
		Text:    m.search.Value(),
		Project: m.project,
		Status:  statusFilters[m.statusIndex],
		Limit:   retrieval.MaxLimit,
	}
}

func (m browseModel) Init() bubbletea.Cmd {
	return bubbletea.Batch(m.spinner.Tick, loadPatternsCmd(m.ctx, m.engine, m.query()))
}

func (m browseModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chrome, 1)
		return m, nil
	case patternsLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.items = msg.items
		m.warnings = msg.warnings
		m.cursor = clamp(m.cursor, len(m.items)-1)
		return m, nil
	case statusChangedMsg:
		if msg.err != nil {
			m.flash = msg.err.Error()
			return m, nil
		}
		m.flash = fmt.Sprintf("%s is now %s", msg.pattern.ID, msg.pattern.Status)
		if m.view == viewDetail {
			m.openDetail(msg.pattern)
		}
		return m.reload()
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case bubbletea.KeyMsg:
		if m.searching {
			return m.handleSearchKey(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m browseModel) handleSearchKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg.Type {
	case bubbletea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.cursor = 0
		return m.reload()
	case bubbletea.KeyEsc:
		m.searching = false
		m.search.Blur()
		return m, nil
	case bubbletea.KeyCtrlC:
		return m, bubbletea.Quit
	}

	var cmd bubbletea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m browseModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, bubbletea.Quit
	case key.Matches(msg, m.keys.Back):
		if m.view == viewDetail {
			m.view = viewList
			m.detail = nil
		}
		return m, nil
	case key.Matches(msg, m.keys.Stale):
		return m.setStatus(record.StatusStale)
	case key.Matches(msg, m.keys.Archive):
		return m.setStatus(record.StatusArchived)
	}

	if m.view == viewDetail {
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.cursor = clamp(m.cursor+1, len(m.items)-1)
	case key.Matches(msg, m.keys.Up):
		m.cursor = clamp(m.cursor-1, len(m.items)-1)
	case key.Matches(msg, m.keys.Enter):
		if p := m.selected(); p != nil {
			m.openDetail(p)
		}
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Filter):
		m.statusIndex = (m.statusIndex + 1) % len(statusFilters)
		m.cursor = 0
		return m.reload()
	}
	return m, nil
}

func (m *browseModel) openDetail(p *record.Pattern) {
	m.view = viewDetail
	m.detail = p
	m.viewport.SetContent(cliui.PatternDetail(p, m.store.Now()))
	m.viewport.GotoTop()
}

func (m browseModel) selected() *record.Pattern {
	if m.view == viewDetail {
		return m.detail
	}
	if len(m.items) == 0 {
		return nil
	}
	return m.items[m.cursor].Pattern
}

func (m browseModel) setStatus(to record.PatternStatus) (bubbletea.Model, bubbletea.Cmd) {
	p := m.selected()
	if p == nil {
		return m, nil
	}
	return m, setStatusCmd(m.ctx, m.store, p.Project, p.ID, to)
}

func (m browseModel) reload() (bubbletea.Model, bubbletea.Cmd) {
	m.loading = true
	return m, bubbletea.Batch(m.spinner.Tick, loadPatternsCmd(m.ctx, m.engine, m.query()))
}

func (m browseModel) View() string {
	if m.view == viewDetail && m.detail != nil {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browseModel) viewHeader() string {
	scope := m.project
	if scope == "" {
		scope = "all projects"
	}
	left := browseTitleStyle.Render("recall browse") + "  " + browseMutedStyle.Render(scope)
	right := browseAccentStyle.Render(string(statusFilters[m.statusIndex]))
	if m.loading {
		right = m.spinner.View() + " " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m browseModel) viewList() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")

	switch {
	case m.searching:
		b.WriteString(m.search.View())
	case m.search.Value() != "":
		b.WriteString(browseMutedStyle.Render("search: " + m.search.Value()))
	}
	b.WriteString("\n")

	rows := max(m.height-chrome, 1)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}

	switch {
	case m.err != nil:
		b.WriteString(browseErrorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	case len(m.items) == 0 && !m.loading:
		b.WriteString(browseMutedStyle.Render("no patterns"))
		b.WriteString("\n")
	}
	for i := start; i < len(m.items) && i < start+rows; i++ {
		item := m.items[i]
		line := cliui.PatternLine(item.Pattern, item.Score, m.width-2)
		if i == m.cursor {
			b.WriteString(browseHighlightStyle.Render(">") + " " + line)
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString(m.viewFooter())
	return b.String()
}

func (m browseModel) viewDetail() string {
	return m.viewHeader() + "\n\n" + m.viewport.View() + "\n" + m.viewFooter()
}

func (m browseModel) viewFooter() string {
	var parts []string
	if m.flash != "" {
		parts = append(parts, browseAccentStyle.Render(m.flash))
	}
	if m.warnings > 0 {
		parts = append(parts, browseErrorStyle.Render(fmt.Sprintf("%d unreadable records", m.warnings)))
	}
	parts = append(parts, browseMutedStyle.Render(m.help.View(m.keys)))
	return strings.Join(parts, "  ")
}

func loadPatternsCmd(ctx context.Context, engine *retrieval.Engine, q retrieval.Query) bubbletea.Cmd {
	return func() bubbletea.Msg {
		res, err := engine.Query(ctx, q)
		if err != nil {
			return patternsLoadedMsg{err: err}
		}
		return patternsLoadedMsg{items: res.Items, warnings: len(res.Warnings)}
	}
}

func setStatusCmd(ctx context.Context, st *store.Store, project, id string, to record.PatternStatus) bubbletea.Cmd {
	return func() bubbletea.Msg {
		var (
			p   *record.Pattern
			err error
		)
		switch to {
		case record.StatusStale:
			p, err = st.MarkStale(ctx, project, id)
		case record.StatusArchived:
			p, err = st.Archive(ctx, project, id)
		default:
			err = fmt.Errorf("cannot set status %q from browse", to)
		}
		return statusChangedMsg{pattern: p, err: err}
	}
}

func clamp(value, upper int) int {
	if value > upper {
		value = upper
	}
	if value < 0 {
		return 0
	}
	return value
}
