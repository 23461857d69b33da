// Command nx-fatdrive-demo is a terminal directory browser over a mounted
// USB Mass Storage FAT volume, driving the same capi surface a C host would
// call. Scaled down from the teacher's chat/menu TUI
// (internal/cli/ui/ui.go): a single bubbles/list.Model re-populated on each
// directory change, a viewport for file previews, and a clipboard-on-select binding for
// grabbing a path.
package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/ischeinkman/nx-fatdrive/capi"
	"github.com/ischeinkman/nx-fatdrive/internal/diag"
	"github.com/ischeinkman/nx-fatdrive/internal/fat"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Padding(0, 2).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 2)

	listStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2563EB"))

	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9CA3AF"))

	copyNoticeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#10B981")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 2).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

const previewByteLimit = 4096

type entryItem struct {
	name  string
	isDir bool
	size  uint64
}

func (i entryItem) Title() string {
	if i.isDir {
		return i.name + "/"
	}
	return i.name
}

func (i entryItem) Description() string {
	if i.isDir {
		return "directory"
	}
	return fmt.Sprintf("%d bytes", i.size)
}

func (i entryItem) FilterValue() string { return i.name }

type dirLoadedMsg struct {
	path    string
	entries []list.Item
	err     error
}

type previewLoadedMsg struct {
	name string
	text string
	err  error
}

type hideCopyNoticeMsg struct{}

type resourceTickMsg struct{}

type model struct {
	path       string
	dirList    list.Model
	preview    viewport.Model
	previewing bool
	previewErr string
	statusErr  string
	copyNotice bool
	snapshot   diag.HostSnapshot
	width      int
	height     int
}

func initialModel() model {
	l := list.New(nil, list.NewDefaultDelegate(), 40, 16)
	l.Title = "/"
	l.SetShowStatusBar(false)

	pv := viewport.New(40, 16)
	pv.Style = previewStyle

	return model{
		path:    "/",
		dirList: l,
		preview: pv,
		width:   80,
		height:  24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tea.ClearScreen, loadDir(m.path), tickResources())
}

func loadDir(dirPath string) tea.Cmd {
	return func() tea.Msg {
		var handle uint64
		if code := capi.OpenDir(dirPath, &handle); code != 0 {
			return dirLoadedMsg{path: dirPath, err: fmt.Errorf("open %s: code 0x%X", dirPath, code)}
		}
		defer capi.CloseDir(handle)

		var items []list.Item
		for {
			var entry capi.DirEntry
			var eof bool
			if code := capi.ReadDir(handle, &entry, &eof); code != 0 {
				return dirLoadedMsg{path: dirPath, err: fmt.Errorf("read %s: code 0x%X", dirPath, code)}
			}
			if eof {
				break
			}
			items = append(items, entryItem{
				name:  entry.Name,
				isDir: entry.Flags == fat.TypeDirectory,
				size:  entry.LengthBytes,
			})
		}
		return dirLoadedMsg{path: dirPath, entries: items}
	}
}

func loadPreview(filePath string, width int) tea.Cmd {
	return func() tea.Msg {
		var handle uint64
		if code := capi.OpenFile(filePath, &handle); code != 0 {
			return previewLoadedMsg{name: filePath, err: fmt.Errorf("open %s: code 0x%X", filePath, code)}
		}
		defer capi.CloseFile(handle)

		buf := make([]byte, previewByteLimit)
		var n int
		if code := capi.ReadFile(handle, buf, &n); code != 0 {
			return previewLoadedMsg{name: filePath, err: fmt.Errorf("read %s: code 0x%X", filePath, code)}
		}
		return previewLoadedMsg{name: filePath, text: renderPreview(buf[:n], width)}
	}
}

// renderPreview renders data for display in the preview pane: printable
// text is word-wrapped to width the same way the teacher's chat/log panes
// wrap long lines (ansi.Wordwrap), binary data becomes a fixed-width hex
// dump where wrapping would only break the byte grouping.
func renderPreview(data []byte, width int) string {
	if isPrintable(data) {
		if width < 1 {
			width = 80
		}
		return ansi.Wordwrap(string(data), width, " \t")
	}
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&b, "%08x  ", i)
		for _, c := range data[i:end] {
			fmt.Fprintf(&b, "%02x ", c)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func isPrintable(data []byte) bool {
	for _, c := range data {
		if c == '\n' || c == '\t' || c == '\r' {
			continue
		}
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}

func tickResources() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return resourceTickMsg{}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.dirList.SetSize(m.width-4, m.height-8)
		m.preview.Width = m.width - 4
		m.preview.Height = m.height - 8

	case resourceTickMsg:
		m.snapshot = diag.TakeHostSnapshot()
		cmds = append(cmds, tickResources())

	case dirLoadedMsg:
		if msg.err != nil {
			m.statusErr = msg.err.Error()
		} else {
			m.statusErr = ""
			m.path = msg.path
			m.dirList.SetItems(msg.entries)
			m.dirList.Title = m.path
			m.previewing = false
		}

	case previewLoadedMsg:
		if msg.err != nil {
			m.previewErr = msg.err.Error()
			m.previewing = false
		} else {
			m.previewErr = ""
			m.previewing = true
			m.preview.SetContent(msg.text)
			m.preview.GotoTop()
		}

	case hideCopyNoticeMsg:
		m.copyNotice = false

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			if m.previewing {
				m.previewing = false
				return m, nil
			}
			if m.path != "/" {
				return m, loadDir(path.Dir(strings.TrimSuffix(m.path, "/")))
			}
		case "enter":
			if item, ok := m.dirList.SelectedItem().(entryItem); ok {
				full := joinPath(m.path, item.name)
				if item.isDir {
					return m, loadDir(full)
				}
				return m, loadPreview(full, m.preview.Width)
			}
		case "c":
			if item, ok := m.dirList.SelectedItem().(entryItem); ok {
				full := joinPath(m.path, item.name)
				if err := clipboard.WriteAll(full); err == nil {
					m.copyNotice = true
					cmds = append(cmds, tea.Tick(1500*time.Millisecond, func(time.Time) tea.Msg {
						return hideCopyNoticeMsg{}
					}))
				}
			}
		}
	}

	if m.previewing {
		m.preview, cmd = m.preview.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		m.dirList, cmd = m.dirList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

func (m model) View() string {
	header := headerStyle.Width(m.width).Render(fmt.Sprintf(" nx-fatdrive-demo | %s", m.path))

	var statusMounted capi.MountStatus
	capi.GetMountStatus(&statusMounted)
	mountLabel := "unmounted"
	switch statusMounted {
	case capi.StatusMounted:
		mountLabel = "mounted"
	case capi.StatusUnsupportedFS:
		mountLabel = "unsupported fs"
	}

	footerText := fmt.Sprintf("%s | drive: %s", m.snapshot.Summary(), mountLabel)
	if m.copyNotice {
		footerText += " " + copyNoticeStyle.Render("✓ path copied")
	}
	footer := footerStyle.Width(m.width).Render(footerText)

	var body string
	switch {
	case m.statusErr != "":
		body = listStyle.Width(m.width - 4).Height(m.height - 8).Render(errorStyle.Render(m.statusErr))
	case m.previewing:
		title := "preview: " + m.path
		if m.previewErr != "" {
			body = previewStyle.Width(m.width - 4).Height(m.height - 8).Render(errorStyle.Render(m.previewErr))
		} else {
			body = previewStyle.Width(m.width - 4).Height(m.height - 8).Render(title + "\n" + m.preview.View())
		}
	default:
		body = listStyle.Width(m.width - 4).Height(m.height - 8).Render(m.dirList.View())
	}

	help := "enter: open  esc: back  c: copy path  q: quit"

	return lipgloss.JoinVertical(lipgloss.Left, header, body, help, footer)
}

func main() {
	timeout := flag.Duration("timeout", diag.DefaultConfig().DriveWaitTimeout, "how long to wait for the drive to enumerate")
	flag.Parse()

	if code := capi.Initialize(*timeout); code != 0 {
		fmt.Fprintf(os.Stderr, "nx-fatdrive-demo: mount failed: code 0x%X\n", code)
		os.Exit(1)
	}
	defer capi.Exit()

	p := tea.NewProgram(initialModel(), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "nx-fatdrive-demo: %v\n", err)
		os.Exit(1)
	}
}
