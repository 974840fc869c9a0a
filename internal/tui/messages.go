package tui

// RowUpdateMsg updates a single test row's fields by column name.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// WorkDoneMsg signals that the build has finished every test.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal build error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
