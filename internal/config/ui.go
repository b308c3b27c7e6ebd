package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	docStyle          = lipgloss.NewStyle().Margin(1, 2)
	titleStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("170"))
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type editorState int

const (
	stateList editorState = iota
	stateSubmenu
	stateEditing
	stateSelection
)

type settingType int

const (
	typeText settingType = iota
	typeNumber
	typeList
	typeToggle
)

// setting binds one menu entry to a field of Config.
type setting struct {
	title   string
	kind    settingType
	options []string
	get     func(*Config) string
	set     func(*Config, string) error
}

func (s setting) Title() string       { return s.title }
func (s setting) Description() string { return "" }
func (s setting) FilterValue() string { return s.title }

type menuItem struct {
	title       string
	description string
	submenu     []setting
}

func (m menuItem) Title() string       { return m.title }
func (m menuItem) Description() string { return m.description }
func (m menuItem) FilterValue() string { return m.title }

type simpleItem string

func (s simpleItem) Title() string       { return string(s) }
func (s simpleItem) Description() string { return "" }
func (s simpleItem) FilterValue() string { return string(s) }

type editor struct {
	path string
	cfg  *Config

	list          list.Model
	submenuList   list.Model
	selectionList list.Model
	textInput     textinput.Model

	state         editorState
	activeMenu    *menuItem
	activeSetting *setting
	err           error
	quitting      bool
}

func textSetting(title string, field func(*Config) *string) setting {
	return setting{
		title: title,
		kind:  typeText,
		get:   func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			*field(c) = v
			return nil
		},
	}
}

func numberSetting(title string, field func(*Config) *int) setting {
	return setting{
		title: title,
		kind:  typeNumber,
		get:   func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%q is not a number", v)
			}
			*field(c) = n
			return nil
		},
	}
}

func toggleSetting(title string, field func(*Config) *bool) setting {
	return setting{
		title: title,
		kind:  typeToggle,
		get:   func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, _ string) error {
			*field(c) = !*field(c)
			return nil
		},
	}
}

func menu() []menuItem {
	provider := textSetting("Provider", func(c *Config) *string { return &c.LLM.Provider })
	provider.kind = typeList
	provider.options = []string{"ollama", "openai", "openrouter"}

	return []menuItem{
		{
			title:       "Thesaurus Server",
			description: "Where synonym lookups are sent",
			submenu: []setting{
				textSetting("URL", func(c *Config) *string { return &c.Server.URL }),
				textSetting("Token", func(c *Config) *string { return &c.Server.Token }),
			},
		},
		{
			title:       "Suggestions",
			description: "When and how synonyms are offered",
			submenu: []setting{
				toggleSetting("Enabled", func(c *Config) *bool { return &c.Suggest.Enabled }),
				numberSetting("Quiet Period (ms)", func(c *Config) *int { return &c.Suggest.QuietPeriodMS }),
				numberSetting("Minimum Word Length", func(c *Config) *int { return &c.Suggest.MinWordLength }),
				numberSetting("Maximum Suggestions", func(c *Config) *int { return &c.Suggest.MaxSuggestions }),
				toggleSetting("Strict Correlation", func(c *Config) *bool { return &c.Suggest.StrictCorrelation }),
			},
		},
		{
			title:       "Popup",
			description: "Suggestion popup layout",
			submenu: []setting{
				numberSetting("Width", func(c *Config) *int { return &c.Popup.Width }),
				numberSetting("Minimum Margin", func(c *Config) *int { return &c.Popup.MinMargin }),
			},
		},
		{
			title:       "Study Sessions",
			description: "Writing time tracking",
			submenu: []setting{
				toggleSetting("Enabled", func(c *Config) *bool { return &c.Study.Enabled }),
				numberSetting("Idle Seconds", func(c *Config) *int { return &c.Study.IdleSeconds }),
			},
		},
		{
			title:       "Server Model",
			description: "LLM used by thesaurusd for unknown words",
			submenu: []setting{
				provider,
				textSetting("Model ID", func(c *Config) *string { return &c.LLM.Model }),
				textSetting("Base URL", func(c *Config) *string { return &c.LLM.BaseURL }),
				textSetting("API Key", func(c *Config) *string { return &c.LLM.APIKey }),
			},
		},
	}
}

func newEditor(path string, cfg *Config) editor {
	items := []list.Item{}
	for _, m := range menu() {
		items = append(items, m)
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedItemStyle
	delegate.Styles.SelectedDesc = selectedItemStyle.Foreground(lipgloss.Color("240"))

	newList := func(items []list.Item, title string) list.Model {
		l := list.New(items, delegate, 0, 0)
		l.Title = title
		l.SetShowStatusBar(false)
		l.SetFilteringEnabled(false)
		l.Styles.Title = titleStyle
		return l
	}

	ti := textinput.New()
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	ti.Focus()

	return editor{
		path:          path,
		cfg:           cfg,
		list:          newList(items, "Quill Configuration"),
		submenuList:   newList(nil, ""),
		selectionList: newList(nil, ""),
		textInput:     ti,
		state:         stateList,
	}
}

func (m editor) Init() tea.Cmd {
	return nil
}

func (m editor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		for _, l := range []*list.Model{&m.list, &m.submenuList, &m.selectionList} {
			l.SetWidth(msg.Width)
			l.SetHeight(msg.Height)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateEditing:
			switch msg.Type {
			case tea.KeyEsc:
				m.state = stateSubmenu
				return m, nil
			case tea.KeyEnter:
				m.apply(m.textInput.Value())
				return m, nil
			}
			m.textInput, cmd = m.textInput.Update(msg)
			return m, cmd

		case stateSelection:
			switch msg.Type {
			case tea.KeyEsc:
				m.state = stateSubmenu
				return m, nil
			case tea.KeyEnter:
				if item, ok := m.selectionList.SelectedItem().(simpleItem); ok {
					m.apply(string(item))
				}
				return m, nil
			}
			m.selectionList, cmd = m.selectionList.Update(msg)
			return m, cmd

		case stateSubmenu:
			switch msg.String() {
			case "ctrl+c", "q":
				m.quitting = true
				return m, tea.Quit
			case "esc":
				m.activeMenu = nil
				m.state = stateList
				return m, nil
			case "enter":
				if item, ok := m.submenuList.SelectedItem().(describedSetting); ok {
					s := item.setting
					m.activeSetting = &s
					m.begin(s)
				}
				return m, nil
			}
			m.submenuList, cmd = m.submenuList.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(menuItem); ok {
				m.activeMenu = &item
				m.submenuList.Title = item.title
				m.refreshSubmenu()
				m.state = stateSubmenu
			}
			return m, nil
		}
	}

	if m.state == stateList {
		m.list, cmd = m.list.Update(msg)
	}
	return m, cmd
}

// begin starts editing s. Toggles flip immediately.
func (m *editor) begin(s setting) {
	switch s.kind {
	case typeToggle:
		m.apply("")
	case typeList:
		items := make([]list.Item, len(s.options))
		for i, opt := range s.options {
			items[i] = simpleItem(opt)
		}
		m.selectionList.SetItems(items)
		m.selectionList.Title = "Select " + s.title
		m.state = stateSelection
	default:
		m.textInput.SetValue(s.get(m.cfg))
		m.textInput.CursorEnd()
		m.state = stateEditing
	}
}

func (m *editor) apply(value string) {
	m.err = m.activeSetting.set(m.cfg, value)
	if m.err == nil {
		m.err = Save(m.path, *m.cfg)
	}
	m.refreshSubmenu()
	m.state = stateSubmenu
}

func (m *editor) refreshSubmenu() {
	if m.activeMenu == nil {
		return
	}
	items := make([]list.Item, len(m.activeMenu.submenu))
	for i, s := range m.activeMenu.submenu {
		items[i] = describedSetting{setting: s, current: display(s, m.cfg)}
	}
	m.submenuList.SetItems(items)
}

// describedSetting shows the current value under the title.
type describedSetting struct {
	setting
	current string
}

func (d describedSetting) Description() string { return "Current: " + d.current }

func display(s setting, cfg *Config) string {
	v := s.get(cfg)
	switch {
	case v == "":
		return "(not set)"
	case s.title == "API Key" || s.title == "Token":
		return "(hidden)"
	}
	return v
}

func (m editor) View() string {
	if m.quitting {
		return ""
	}

	var status string
	if m.err != nil {
		status = "\n" + errorStyle.Render("  "+m.err.Error())
	}

	switch m.state {
	case stateEditing:
		return fmt.Sprintf(
			"\n  Edit %s\n\n  %s\n\n  (esc to cancel, enter to save)%s",
			m.activeSetting.title,
			m.textInput.View(),
			status,
		)
	case stateSelection:
		return docStyle.Render(m.selectionList.View()) + status
	case stateSubmenu:
		return docStyle.Render(m.submenuList.View()) + status
	}
	return docStyle.Render(m.list.View()) + status
}

// Save writes cfg to path as YAML, creating the directory when needed.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// RunEditor opens the interactive settings editor for the file at path.
func RunEditor(path string, cfg Config) error {
	p := tea.NewProgram(newEditor(path, &cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
