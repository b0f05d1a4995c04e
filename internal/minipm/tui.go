package minipm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type logInfo struct {
	name    string
	path    string
	content string
}

var (
	tuiApp         *tview.Application
	tuiLogs        []logInfo
	tuiActiveIdx   int
	tuiPrevIdx     int
	tuiHeaderBox   *tview.TextView
	tuiLogView     *tview.TextView
	tuiFooterBox   *tview.TextView
	tuiPrevContent map[string]string
	tuiWantScroll  bool
)

// runLogViewer shows the build logs in a scrollable, live-refreshing view.
// With a name it starts on that package's log.
func runLogViewer(startName string) int {
	tuiPrevContent = make(map[string]string)
	tuiPrevIdx = -1

	tuiApp = tview.NewApplication()

	tuiHeaderBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	tuiHeaderBox.SetBorder(true)
	tuiHeaderBox.SetTitle("minipm build logs")

	tuiLogView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true).
		SetChangedFunc(func() {
			tuiApp.Draw()
		})
	tuiLogView.SetBorder(true)

	tuiFooterBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	tuiFooterBox.SetBorder(true)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tuiHeaderBox, 3, 0, false).
		AddItem(tuiLogView, 0, 1, true).
		AddItem(tuiFooterBox, 3, 0, false)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlQ, tcell.KeyEsc:
			tuiApp.Stop()
			return nil
		case tcell.KeyLeft:
			switchLog(-1)
			return nil
		case tcell.KeyRight:
			switchLog(1)
			return nil
		case tcell.KeyHome:
			tuiLogView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			tuiLogView.ScrollToEnd()
			return nil
		case tcell.KeyUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 0 {
				tuiLogView.ScrollTo(row-1, 0)
			}
			return nil
		case tcell.KeyDown:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+1, 0)
			return nil
		case tcell.KeyPgUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 10 {
				tuiLogView.ScrollTo(row-10, 0)
			} else {
				tuiLogView.ScrollToBeginning()
			}
			return nil
		case tcell.KeyPgDn:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+10, 0)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q':
				tuiApp.Stop()
				return nil
			case 'h':
				switchLog(-1)
				return nil
			case 'l':
				switchLog(1)
				return nil
			}
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(400 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			logs := readBuildLogs()
			tuiApp.QueueUpdateDraw(func() {
				// Keep focus on the log being viewed across refreshes.
				var current string
				if tuiActiveIdx < len(tuiLogs) {
					current = tuiLogs[tuiActiveIdx].path
				}
				tuiLogs = logs
				if current != "" {
					for i, l := range tuiLogs {
						if l.path == current {
							tuiActiveIdx = i
							break
						}
					}
				}
				if tuiActiveIdx >= len(tuiLogs) && len(tuiLogs) > 0 {
					tuiActiveIdx = len(tuiLogs) - 1
				}
				updateLogViewer()
			})
		}
	}()

	tuiApp.SetRoot(flex, true).SetFocus(tuiLogView)

	tuiLogs = readBuildLogs()
	if startName != "" {
		for i, l := range tuiLogs {
			if l.name == startName {
				tuiActiveIdx = i
				break
			}
		}
	}
	tuiWantScroll = true
	updateLogViewer()

	if err := tuiApp.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "log viewer:", err)
		return 1
	}
	return 0
}

func switchLog(delta int) {
	if len(tuiLogs) == 0 {
		return
	}
	tuiActiveIdx = (tuiActiveIdx + delta + len(tuiLogs)) % len(tuiLogs)
	tuiWantScroll = true
	updateLogViewer()
}

func updateLogViewer() {
	if tuiApp == nil || tuiHeaderBox == nil || tuiLogView == nil || tuiFooterBox == nil {
		return
	}

	if len(tuiLogs) == 0 {
		tuiHeaderBox.SetText("[gray]No build logs found[white]")
		tuiLogView.SetText("No build log yet. Run 'minipm build <package>' to start a build.")
	} else if tuiActiveIdx < len(tuiLogs) {
		l := tuiLogs[tuiActiveIdx]
		tuiHeaderBox.SetText(fmt.Sprintf("[gray]Log %d/%d: %s[white]", tuiActiveIdx+1, len(tuiLogs), l.path))

		switched := tuiPrevIdx != tuiActiveIdx
		if switched {
			tuiPrevIdx = tuiActiveIdx
		}
		prev, hadPrev := tuiPrevContent[l.path]
		if l.content != prev || switched {
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.Clear()
			w := tview.ANSIWriter(tuiLogView)
			w.Write([]byte(l.content))

			if switched || tuiWantScroll {
				tuiLogView.ScrollToEnd()
				tuiWantScroll = false
			} else if hadPrev {
				tuiLogView.ScrollTo(row, 0)
			}
			tuiPrevContent[l.path] = l.content
		}
	}

	tuiFooterBox.SetText("[gray]q/Esc quit | ← → (or h/l) switch logs | ↑ ↓ scroll | Home/End jump[white]")
}

// readBuildLogs loads every log under the logs dir, newest first.
func readBuildLogs() []logInfo {
	paths, _ := filepath.Glob(filepath.Join(logsDir, "*.log"))
	if len(paths) == 0 {
		return nil
	}

	sort.Slice(paths, func(i, j int) bool {
		ai, err1 := os.Stat(paths[i])
		aj, err2 := os.Stat(paths[j])
		if err1 != nil || err2 != nil {
			return paths[i] > paths[j]
		}
		return ai.ModTime().After(aj.ModTime())
	})

	logs := make([]logInfo, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		content := string(b)
		if err != nil {
			content = fmt.Sprintf("failed to read log: %v", err)
		}
		logs = append(logs, logInfo{
			name:    strings.TrimSuffix(filepath.Base(p), ".log"),
			path:    p,
			content: content,
		})
	}
	return logs
}
