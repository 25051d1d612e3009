package core

type MonitorManager interface {

	AddMonitor(name string, m Monitor)

	ListMonitors() []string

	RemoveMonitor(name string)

	UpdateFromPreferences(prefs Preferences)

	ReportStatus(sink StatusSink)

	PollNow()

	Terminate()
}
